// Package metrics exports statistics of a kvlog.Store to prometheus
package metrics

import (
	"io"

	"github.com/kjk/drum/kvlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var (
	entriesDesc = prometheus.NewDesc(
		"kvlog_entries_total",
		"Number of entries ever appended to the log, as recorded in the header",
		nil, nil,
	)
	liveKeysDesc = prometheus.NewDesc(
		"kvlog_live_keys",
		"Number of keys in the index",
		nil, nil,
	)
	logBytesDesc = prometheus.NewDesc(
		"kvlog_log_bytes",
		"Size of the log file in bytes",
		nil, nil,
	)
	liveBytesDesc = prometheus.NewDesc(
		"kvlog_live_bytes",
		"Size of entries of live keys in bytes",
		nil, nil,
	)
	garbageBytesDesc = prometheus.NewDesc(
		"kvlog_garbage_bytes",
		"Size of overwritten or removed entries in bytes, reclaimed by compaction",
		nil, nil,
	)
)

// StoreCollector is a prometheus.Collector that reports Stats of a store
// every time metrics are gathered.
// stats is called from the goroutine that gathers metrics so it must
// be safe to call concurrently with the store's users.
type StoreCollector struct {
	stats func() kvlog.Stats
}

var _ prometheus.Collector = &StoreCollector{}

func NewStoreCollector(stats func() kvlog.Stats) *StoreCollector {
	return &StoreCollector{stats: stats}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- entriesDesc
	ch <- liveKeysDesc
	ch <- logBytesDesc
	ch <- liveBytesDesc
	ch <- garbageBytesDesc
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(entriesDesc, prometheus.CounterValue, float64(st.Entries))
	ch <- prometheus.MustNewConstMetric(liveKeysDesc, prometheus.GaugeValue, float64(st.Live))
	ch <- prometheus.MustNewConstMetric(logBytesDesc, prometheus.GaugeValue, float64(st.LogBytes))
	ch <- prometheus.MustNewConstMetric(liveBytesDesc, prometheus.GaugeValue, float64(st.LiveBytes))
	ch <- prometheus.MustNewConstMetric(garbageBytesDesc, prometheus.GaugeValue, float64(st.Garbage()))
}

// WriteText gathers metrics from g and writes them to w in prometheus
// text exposition format
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
