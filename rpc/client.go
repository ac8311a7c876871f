package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/stormplug/bridge"
	"github.com/dshills/stormplug/diag"
	"github.com/dshills/stormplug/internal/protocol"
	"github.com/dshills/stormplug/plugin"
)

// EnvAddr is the environment variable naming the host's TCP address.
// When it is unset, FromEnv falls back to the standard streams.
const EnvAddr = "STORMPLUG_ADDR"

// DefaultDrainTimeout bounds how long Serve waits for in-flight blocking
// invocations after the host closes the connection.
const DefaultDrainTimeout = 5 * time.Second

// Client is the wire transport binding: it implements plugin.Host over
// one connection to the editor. Safe for concurrent use.
type Client struct {
	framer *protocol.Framer
	closer io.Closer
	sink   *diag.Sink

	name         string
	version      string
	drainTimeout time.Duration

	mu       sync.RWMutex
	handlers map[regKey]handlerEntry

	serving  atomic.Bool
	inflight sync.WaitGroup

	invocations atomic.Uint64
	responses   atomic.Uint64
	notifies    atomic.Uint64
	malformed   atomic.Uint64
	unknown     atomic.Uint64
	writeErrs   atomic.Uint64
}

type regKey struct {
	kind plugin.Kind
	name string
}

// handlerEntry adapts a decoded invoke into one native handler call. done
// is nil on fire-and-forget dispatch.
type handlerEntry struct {
	sync   bool
	invoke func(m protocol.Message, done bridge.Done)
}

// Option configures a Client.
type Option func(*Client)

// WithSink routes the client's own diagnostics to s instead of the
// environment sink.
func WithSink(s *diag.Sink) Option {
	return func(c *Client) {
		c.sink = s
	}
}

// WithName sets the plugin name announced in the hello message. The
// default is the process name.
func WithName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithVersion sets the plugin version announced in the hello message.
func WithVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.version = version
		}
	}
}

// WithDrainTimeout overrides DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}

// New wraps an arbitrary transport. If rw is also an io.Closer, Close
// will close it.
func New(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		framer:       protocol.NewFramer(rw, rw),
		name:         filepath.Base(os.Args[0]),
		version:      "dev",
		drainTimeout: DefaultDrainTimeout,
		handlers:     make(map[regKey]handlerEntry),
	}
	if closer, ok := rw.(io.Closer); ok {
		c.closer = closer
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink, _ = diag.FromEnv()
	}
	return c
}

// Stdio connects over the process's standard streams, the usual transport
// for host-spawned plugins.
func Stdio(opts ...Option) *Client {
	return New(stdio{}, opts...)
}

// Dial connects to a host listening on a TCP address.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial host %q: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// FromEnv connects according to the environment: a set STORMPLUG_ADDR
// dials TCP, otherwise the standard streams are used.
func FromEnv(opts ...Option) (*Client, error) {
	if addr, ok := os.LookupEnv(EnvAddr); ok && addr != "" {
		return Dial(addr, opts...)
	}
	return Stdio(opts...), nil
}

// stdio is the standard-stream transport.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// RegisterCommand implements plugin.Host.
func (c *Client) RegisterCommand(name string, opts plugin.Options, fn plugin.CommandFunc) error {
	return c.register(plugin.KindCommand, name, false, opts, func(m protocol.Message, _ bridge.Done) {
		fn(m.Args, toRange(m))
	})
}

// RegisterCommandSync implements plugin.Host.
func (c *Client) RegisterCommandSync(name string, opts plugin.Options, fn plugin.CommandSyncFunc) error {
	return c.register(plugin.KindCommand, name, true, opts, func(m protocol.Message, done bridge.Done) {
		fn(done, m.Args, toRange(m))
	})
}

// RegisterAutocmd implements plugin.Host.
func (c *Client) RegisterAutocmd(event string, opts plugin.Options, fn plugin.AutocmdFunc) error {
	return c.register(plugin.KindAutocmd, event, false, opts, func(m protocol.Message, _ bridge.Done) {
		fn(m.File)
	})
}

// RegisterAutocmdSync implements plugin.Host.
func (c *Client) RegisterAutocmdSync(event string, opts plugin.Options, fn plugin.AutocmdSyncFunc) error {
	return c.register(plugin.KindAutocmd, event, true, opts, func(m protocol.Message, done bridge.Done) {
		fn(done, m.File)
	})
}

// RegisterFunction implements plugin.Host.
func (c *Client) RegisterFunction(name string, opts plugin.Options, fn plugin.FunctionFunc) error {
	return c.register(plugin.KindFunction, name, false, opts, func(m protocol.Message, _ bridge.Done) {
		fn(m.Args)
	})
}

// RegisterFunctionSync implements plugin.Host.
func (c *Client) RegisterFunctionSync(name string, opts plugin.Options, fn plugin.FunctionSyncFunc) error {
	return c.register(plugin.KindFunction, name, true, opts, func(m protocol.Message, done bridge.Done) {
		fn(m.Args, done)
	})
}

// register installs the dispatch entry and announces the registration.
func (c *Client) register(kind plugin.Kind, name string, sync bool, opts plugin.Options, invoke func(protocol.Message, bridge.Done)) error {
	if name == "" {
		return fmt.Errorf("register %s: %w", kind, ErrEmptyName)
	}
	key := regKey{kind: kind, name: name}

	c.mu.Lock()
	if _, dup := c.handlers[key]; dup {
		c.mu.Unlock()
		return fmt.Errorf("register %s %q: %w", kind, name, ErrDuplicateRegistration)
	}
	c.handlers[key] = handlerEntry{sync: sync, invoke: invoke}
	c.mu.Unlock()

	if err := c.framer.WriteLine(protocol.EncodeRegister(string(kind), name, sync, opts)); err != nil {
		c.mu.Lock()
		delete(c.handlers, key)
		c.mu.Unlock()
		return fmt.Errorf("register %s %q: %w", kind, name, err)
	}
	return nil
}

// Notify implements plugin.Host.
func (c *Client) Notify(method string, args ...any) error {
	if method == "" {
		return fmt.Errorf("notify: %w", ErrEmptyName)
	}
	if err := c.framer.WriteLine(protocol.EncodeNotify(method, args)); err != nil {
		c.writeErrs.Add(1)
		return fmt.Errorf("notify %q: %w", method, err)
	}
	c.notifies.Add(1)
	return nil
}

// Serve announces the plugin and processes invocations until the host
// closes the connection or ctx is cancelled. A clean close returns nil
// after draining in-flight blocking invocations; cancellation abandons
// them and returns ctx.Err().
func (c *Client) Serve(ctx context.Context) error {
	if !c.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer c.serving.Store(false)

	if err := c.framer.WriteLine(protocol.EncodeHello(c.name, c.version)); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := c.framer.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case rerr := <-readErr:
			if rerr != io.EOF {
				err = rerr
			}
			break loop
		case line := <-lines:
			c.dispatch(ctx, line)
		}
	}

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(c.drainTimeout):
	case <-ctx.Done():
	}
	return err
}

// Close closes the underlying transport if the client owns one.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// dispatch decodes one line and routes it. Bad input is reported and
// skipped.
func (c *Client) dispatch(ctx context.Context, line []byte) {
	m, err := protocol.Decode(line)
	if err != nil {
		c.malformed.Add(1)
		c.sink.Report(fmt.Errorf("malformed message: %w", err))
		return
	}
	if m.Type != protocol.TypeInvoke {
		// Plugins only consume invokes.
		c.unknown.Add(1)
		c.sink.Report(fmt.Errorf("unexpected message type %q", m.Type))
		return
	}
	c.invoke(ctx, m)
}

// invoke dispatches one invocation onto its own goroutine.
func (c *Client) invoke(ctx context.Context, m protocol.Message) {
	c.invocations.Add(1)

	key := regKey{kind: plugin.Kind(m.Kind), name: m.Name}
	c.mu.RLock()
	e, ok := c.handlers[key]
	c.mu.RUnlock()

	if !ok {
		c.unknown.Add(1)
		if m.HasID {
			c.respond(m.ID, fmt.Sprintf("unknown %s %q", m.Kind, m.Name), nil)
		} else {
			c.sink.Report(fmt.Errorf("invoke of unknown %s %q", m.Kind, m.Name))
		}
		return
	}

	if m.HasID {
		if !e.sync {
			// The host expects a response a fire-and-forget handler will
			// never produce; fail the invocation instead of hanging it.
			c.respond(m.ID, fmt.Sprintf("%s %q is not blocking", m.Kind, m.Name), nil)
			return
		}
		id := m.ID
		c.inflight.Add(1)
		done := bridge.Once(func(err error, value any) {
			defer c.inflight.Done()
			if err != nil {
				c.respond(id, err.Error(), nil)
				return
			}
			c.respond(id, "", value)
		})
		go e.invoke(m, done)
		return
	}

	var done bridge.Done
	if e.sync {
		// A blocking handler driven fire-and-forget delivers its outcome
		// to the sink, like any detached computation.
		done = func(err error, value any) {
			if err != nil {
				c.sink.Report(err)
				return
			}
			c.sink.Report(value)
		}
	}
	go e.invoke(m, done)
}

// respond writes one correlated response line.
func (c *Client) respond(id int64, errMsg string, value any) {
	if err := c.framer.WriteLine(protocol.EncodeResponse(id, errMsg, value)); err != nil {
		c.writeErrs.Add(1)
		c.sink.Report(fmt.Errorf("write response %d: %w", id, err))
		return
	}
	c.responses.Add(1)
}

func toRange(m protocol.Message) plugin.Range {
	if !m.HasRange {
		return plugin.Range{}
	}
	return plugin.Range{Start: m.Range[0], End: m.Range[1]}
}

// Stats is a point-in-time snapshot of wire activity.
type Stats struct {
	// Invocations is the number of invoke messages received.
	Invocations uint64
	// Responses is the number of response lines written.
	Responses uint64
	// Notifies is the number of notifications sent.
	Notifies uint64
	// Malformed is the number of undecodable inbound lines.
	Malformed uint64
	// Unknown is the number of invokes with no matching handler plus
	// unexpected message types.
	Unknown uint64
	// WriteErrors is the number of failed outbound writes.
	WriteErrors uint64
}

// Stats returns a snapshot of wire activity.
func (c *Client) Stats() Stats {
	return Stats{
		Invocations: c.invocations.Load(),
		Responses:   c.responses.Load(),
		Notifies:    c.notifies.Load(),
		Malformed:   c.malformed.Load(),
		Unknown:     c.unknown.Load(),
		WriteErrors: c.writeErrs.Load(),
	}
}

var _ plugin.Host = (*Client)(nil)
