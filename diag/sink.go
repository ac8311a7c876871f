package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// EnvLogFile is the environment variable naming the sink's destination
// path. When it is unset, FromEnv returns a disabled sink.
const EnvLogFile = "STORMPLUG_LOG_FILE"

// Reporter is the consumer-side view of a sink.
type Reporter interface {
	// Report serializes v to the diagnostic destination. It must be safe
	// to call with any value, including nil, and must not panic on
	// ordinary values.
	Report(v any)
}

// Sink serializes arbitrary values to a diagnostic destination, one line
// per value. A disabled sink discards everything. Safe for concurrent use.
type Sink struct {
	mu         sync.Mutex
	w          io.Writer
	closer     io.Closer
	disabled   bool
	pretty     bool
	timestamps bool
}

// Option configures a Sink.
type Option func(*Sink)

// WithPretty renders each reported value as indented JSON.
func WithPretty() Option {
	return func(s *Sink) {
		s.pretty = true
	}
}

// WithTimestamps wraps each line in an envelope carrying the report time.
func WithTimestamps() Option {
	return func(s *Sink) {
		s.timestamps = true
	}
}

// New creates a sink writing to w. A nil w yields a disabled sink.
func New(w io.Writer, opts ...Option) *Sink {
	s := &Sink{w: w, disabled: w == nil}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a sink appending to the file at path, creating it if
// needed.
func Open(path string, opts ...Option) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostic destination: %w", err)
	}
	s := New(f, opts...)
	s.closer = f
	return s, nil
}

// FromEnv creates a sink from the STORMPLUG_LOG_FILE environment variable.
// An unset variable is not an error: it yields a disabled sink. A set but
// unopenable path yields a disabled sink and the open error.
func FromEnv(opts ...Option) (*Sink, error) {
	path, ok := os.LookupEnv(EnvLogFile)
	if !ok || path == "" {
		return Disabled(), nil
	}
	s, err := Open(path, opts...)
	if err != nil {
		return Disabled(), err
	}
	return s, nil
}

// Disabled returns a sink that discards all reports.
func Disabled() *Sink {
	return &Sink{disabled: true}
}

// Enabled reports whether the sink has a destination.
func (s *Sink) Enabled() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.disabled
}

// Report writes one line containing the serialization of v. On a disabled
// or nil sink it does nothing. Write errors are discarded: the sink is the
// lowest-level channel and has nowhere to report its own failures.
func (s *Sink) Report(v any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}

	line := serialize(v)
	if s.timestamps {
		env, _ := sjson.SetBytes([]byte(`{}`), "time", time.Now().Format(time.RFC3339Nano))
		env, _ = sjson.SetRawBytes(env, "value", line)
		line = env
	}
	if s.pretty {
		line = pretty.Pretty(line)
	}
	for len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	_, _ = s.w.Write(append(line, '\n'))
}

// Close releases the destination if the sink owns one and disables the
// sink. Reports after Close are discarded.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// serialize renders v as a single JSON value. Errors report as their
// message; unmarshalable values fall back to their fmt representation.
func serialize(v any) []byte {
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return b
}
