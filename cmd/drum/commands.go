package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kjk/drum/atomicfile"
	"github.com/kjk/drum/backup"
	"github.com/kjk/drum/codec"
	"github.com/kjk/drum/kvlog"
	"github.com/kjk/drum/metrics"
	"github.com/kjk/drum/u"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/pretty"
	"github.com/toon-format/toon-go"
)

func storeOptions(opts *options) kvlog.Options[string, any] {
	res := kvlog.Options[string, any]{
		Keys:   codec.String{},
		Values: codec.JSON[any]{},
	}
	if opts.ordered {
		res.NewIndex = func() kvlog.Index[string] {
			return kvlog.NewOrderedIndex[string]()
		}
	}
	return res
}

func openStore(opts *options) (*kvlog.Store[string, any], error) {
	return kvlog.Open(opts.dbPath, storeOptions(opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func formatJSON(v any, color bool) ([]byte, error) {
	d, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	d = pretty.Pretty(d)
	if color {
		d = pretty.Color(d, nil)
	}
	return d, nil
}

// parseValue parses s as JSON. If it's not valid JSON, it's a string
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func needArgs(cmd string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("'%s' needs %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func cmdKeys(opts *options, w io.Writer, args []string) error {
	if err := needArgs("keys", args, 0); err != nil {
		return err
	}
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	for k := range s.Keys() {
		fmt.Fprintln(w, k)
	}
	return nil
}

func cmdGet(opts *options, w io.Writer, args []string) error {
	if err := needArgs("get", args, 1); err != nil {
		return err
	}
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	v, ok, err := s.Get(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key '%s' not found", args[0])
	}
	d, err := formatJSON(v, opts.color)
	if err != nil {
		return err
	}
	_, err = w.Write(d)
	return err
}

func cmdPut(opts *options, w io.Writer, args []string) error {
	if err := needArgs("put", args, 2); err != nil {
		return err
	}
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	prev, hadPrev, err := s.Insert(args[0], parseValue(args[1]))
	if err != nil {
		return err
	}
	if !hadPrev {
		return nil
	}
	d, err := formatJSON(prev, opts.color)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "previous: %s", d)
	return nil
}

// removing a key only changes the index so to make it stick we write
// a compacted copy of the log, without the key
func cmdRemove(opts *options, w io.Writer, args []string) error {
	if err := needArgs("rm", args, 1); err != nil {
		return err
	}
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	v, ok, err := s.Remove(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key '%s' not found", args[0])
	}

	f, err := atomicfile.New(opts.dbPath)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotClosed()
	if _, err = s.CompactTo(f); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	d, err := formatJSON(v, opts.color)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "removed: %s", d)
	return nil
}

func cmdDump(opts *options, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	asToon := fs.Bool("toon", false, "print as toon instead of JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	m := map[string]any{}
	for k := range s.Keys() {
		v, _, err := s.Get(k)
		if err != nil {
			return err
		}
		m[k] = v
	}
	var d []byte
	if *asToon {
		d, err = toon.Marshal(m)
	} else {
		d, err = formatJSON(m, opts.color)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(d)
	return err
}

func cmdStats(opts *options, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	prom := fs.Bool("prom", false, "print in prometheus text format")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()
	if *prom {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewStoreCollector(s.Stats))
		return metrics.WriteText(w, reg)
	}
	st := s.Stats()
	garbage := int64(st.Garbage())
	fmt.Fprintf(w, "entries:   %d\n", st.Entries)
	fmt.Fprintf(w, "live keys: %d\n", st.Live)
	fmt.Fprintf(w, "log size:  %s\n", u.FormatSize(int64(st.LogBytes)))
	fmt.Fprintf(w, "live size: %s\n", u.FormatSize(int64(st.LiveBytes)))
	fmt.Fprintf(w, "garbage:   %s (%.2f%%)\n", u.FormatSize(garbage), u.Percent(int64(st.LogBytes), garbage))
	return nil
}

func cmdCompact(opts *options, w io.Writer, args []string) error {
	if err := needArgs("compact", args, 0); err != nil {
		return err
	}
	before, after, err := kvlog.CompactFile(opts.dbPath, storeOptions(opts))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "compacted '%s' from %s to %s\n", opts.dbPath, u.FormatSize(int64(before.LogBytes)), u.FormatSize(int64(after.LogBytes)))
	return nil
}

func cmdBackup(ctx context.Context, opts *options, cfg *backup.Config, w io.Writer, args []string) error {
	if err := needArgs("backup", args, 0); err != nil {
		return err
	}
	if !u.FileExists(opts.dbPath) {
		return fmt.Errorf("store file '%s' doesn't exist", opts.dbPath)
	}
	res, err := backup.Run(ctx, cfg, opts.dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "backed up '%s' (%s, %s compressed) as:\n", opts.dbPath, u.FormatSize(res.Size), u.FormatSize(res.CompressedSize))
	for _, loc := range res.Locations {
		fmt.Fprintf(w, "  %s\n", loc)
	}
	return nil
}

func cmdBackups(ctx context.Context, cfg *backup.Config, w io.Writer, args []string) error {
	if err := needArgs("backups", args, 0); err != nil {
		return err
	}
	names, err := backup.List(ctx, cfg)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}

func cmdRestore(ctx context.Context, opts *options, cfg *backup.Config, w io.Writer, args []string) error {
	if err := needArgs("restore", args, 1); err != nil {
		return err
	}
	st, err := backup.Restore(ctx, cfg, args[0], opts.dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "restored '%s' from '%s': %d entries, %s\n", opts.dbPath, args[0], st.Entries, u.FormatSize(int64(st.LogBytes)))
	return nil
}
