package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/toon-format/toon-go"
)

var (
	mainLog   *dailyFile
	errorsLog *dailyFile
	eventsLog *dailyFile

	// if true, Verbosef() will log messages
	Verbose bool

	// where Logf() prints. nil means: only log to files
	Out io.Writer = os.Stdout
)

// dailyFile appends to ${dir}/${YYYY-MM-DD}.txt, switching to a new file
// when the (UTC) day changes. Methods are no-ops on nil receiver
// so that logging works before Init()
type dailyFile struct {
	dir  string
	day  string
	file *os.File
	mu   sync.Mutex
}

func (d *dailyFile) write(p []byte) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if d.file != nil && d.day != day {
		_ = d.file.Close()
		d.file = nil
	}
	if d.file == nil {
		if err := os.MkdirAll(d.dir, 0755); err != nil {
			return err
		}
		path := filepath.Join(d.dir, day+".txt")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		d.file = f
		d.day = day
	}
	_, err := d.file.Write(p)
	return err
}

func (d *dailyFile) close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		_ = d.file.Sync()
		_ = d.file.Close()
		d.file = nil
	}
}

type Config struct {
	// directory where log files are stored.
	// regular logs, errors and events go to log/, errors/ and events/
	// sub-directories
	Dir string
}

// Init starts logging to files in config.Dir, in addition to Out.
// Files are created on first write.
func Init(config *Config) {
	mainLog = &dailyFile{dir: filepath.Join(config.Dir, "log")}
	errorsLog = &dailyFile{dir: filepath.Join(config.Dir, "errors")}
	eventsLog = &dailyFile{dir: filepath.Join(config.Dir, "events")}
}

// Close closes log files. Logging after Close only goes to Out
func Close() {
	for _, d := range []**dailyFile{&mainLog, &errorsLog, &eventsLog} {
		(*d).close()
		*d = nil
	}
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	if Out != nil {
		fmt.Fprint(Out, s)
	}
	_ = mainLog.write([]byte(s))
}

func Verbosef(format string, args ...any) {
	if Verbose {
		Logf(format, args...)
	}
}

// callstack returns "file:line" of callers, one per line
func callstack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	var lines []string
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		lines = append(lines, frame.File+":"+strconv.Itoa(frame.Line))
	}
	return strings.Join(lines, "\n")
}

// Errorf logs an error message along with the callstack.
// It also goes to errors log
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	s = strings.TrimSuffix(s, "\n") + "\n" + callstack(1) + "\n"
	Logf("%s", s)
	_ = errorsLog.write([]byte(s))
}

// IfErrf logs err if it's not nil and returns true.
// IfErrf(err) logs err.Error()
// IfErrf(err, "open of '%s' failed with %v", path, err) logs formatted message
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	format, ok := a[0].(string)
	if !ok {
		format = fmt.Sprint(a[0])
	}
	Errorf(format, a[1:]...)
	return true
}

// eventKey converts key of an event to string.
// only simple types are allowed as keys
func eventKey(v any) string {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("log: event key '%v' is not a simple type", v))
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// MarshalEvent serializes event as:
// --- ${len} ${timestamp_in_unix_epoch_ms} ${name}\n
// ${data}\n
// data is toon-encoded key / value pairs from vals, which must
// have even length. If toon fails, data is fmt.Sprint() of the pairs
func MarshalEvent(name string, t time.Time, vals ...any) []byte {
	if len(vals)%2 != 0 {
		panic(fmt.Sprintf("log: event '%s' has odd number of values", name))
	}
	var data []byte
	if len(vals) > 0 {
		m := map[string]any{}
		for i := 0; i < len(vals); i += 2 {
			m[eventKey(vals[i])] = vals[i+1]
		}
		var err error
		data, err = toon.Marshal(m)
		if err != nil {
			// values toon can't encode still get logged
			data = []byte(fmt.Sprint(m))
		}
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %d %d %s\n", len(data), t.UnixMilli(), name)
	if len(data) > 0 {
		buf.Write(data)
		// for readability
		if data[len(data)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// Event logs an event to events log. Without Init() it only shows
// in verbose mode
func Event(name string, vals ...any) {
	d := MarshalEvent(name, time.Now().UTC(), vals...)
	_ = eventsLog.write(d)
	Verbosef("event: %s", d)
}

func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durmicro", dur.Microseconds())
	Event(name, vals...)
}
