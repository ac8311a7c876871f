package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dshills/stormplug/bridge"
	"github.com/dshills/stormplug/diag"
	"github.com/dshills/stormplug/task"
)

// Plugin wires handler registrations to a Host and owns the diagnostic
// sink that receives detached outcomes. Safe for concurrent use.
type Plugin struct {
	host Host
	sink *diag.Sink
	ctx  context.Context

	mu    sync.Mutex
	seen  map[string]struct{}
	specs []Spec

	registered atomic.Uint64
	invoked    atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	panicked   atomic.Uint64
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithSink routes detached outcomes to s instead of the environment sink.
func WithSink(s *diag.Sink) Option {
	return func(p *Plugin) {
		p.sink = s
	}
}

// WithContext sets the base context handler invocations observe. The
// default is context.Background.
func WithContext(ctx context.Context) Option {
	return func(p *Plugin) {
		if ctx != nil {
			p.ctx = ctx
		}
	}
}

// New creates a Plugin bound to host. Unless WithSink overrides it, the
// diagnostic sink comes from the environment; an open failure there
// degrades to a disabled sink since no lower-level channel exists to
// report it.
func New(host Host, opts ...Option) (*Plugin, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	p := &Plugin{
		host: host,
		ctx:  context.Background(),
		seen: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink, _ = diag.FromEnv()
	}
	return p, nil
}

// Command registers a non-blocking command handler: the host hears
// nothing back, and the handler's outcome goes to the diagnostic sink.
func (p *Plugin) Command(name string, opts Options, h CommandHandler) error {
	spec := Spec{Kind: KindCommand, Name: name, Opts: opts.withDefaults()}
	if err := p.claim(spec, h == nil); err != nil {
		return err
	}
	fn := func(args []string, rng Range) {
		ictx := p.newContext(KindCommand, name)
		iv := commandInvocation{handler: h, args: normalizeArgs(args), rng: rng}
		p.invoked.Add(1)
		bridge.Detach(ictx, p.reporter(), iv.run(ictx))
	}
	return p.commit(spec, p.host.RegisterCommand(name, spec.Opts, fn))
}

// CommandSync registers a blocking command handler: the host waits until
// the handler's outcome is delivered through its completion callback.
func (p *Plugin) CommandSync(name string, opts Options, h CommandHandler) error {
	spec := Spec{Kind: KindCommand, Name: name, Sync: true, Opts: opts.withDefaults()}
	if err := p.claim(spec, h == nil); err != nil {
		return err
	}
	fn := func(done bridge.Done, args []string, rng Range) {
		ictx := p.newContext(KindCommand, name)
		iv := commandInvocation{handler: h, args: normalizeArgs(args), rng: rng}
		p.invoked.Add(1)
		bridge.Run(ictx, p.counting(done), iv.run(ictx))
	}
	return p.commit(spec, p.host.RegisterCommandSync(name, spec.Opts, fn))
}

// Autocmd registers a non-blocking autocommand handler for event.
func (p *Plugin) Autocmd(event string, opts Options, h AutocmdHandler) error {
	spec := Spec{Kind: KindAutocmd, Name: event, Opts: opts.withDefaults()}
	if err := p.claim(spec, h == nil); err != nil {
		return err
	}
	fn := func(file string) {
		ictx := p.newContext(KindAutocmd, event)
		iv := autocmdInvocation{handler: h, file: file}
		p.invoked.Add(1)
		bridge.Detach(ictx, p.reporter(), iv.run(ictx))
	}
	return p.commit(spec, p.host.RegisterAutocmd(event, spec.Opts, fn))
}

// AutocmdSync registers a blocking autocommand handler for event.
func (p *Plugin) AutocmdSync(event string, opts Options, h AutocmdHandler) error {
	spec := Spec{Kind: KindAutocmd, Name: event, Sync: true, Opts: opts.withDefaults()}
	if err := p.claim(spec, h == nil); err != nil {
		return err
	}
	fn := func(done bridge.Done, file string) {
		ictx := p.newContext(KindAutocmd, event)
		iv := autocmdInvocation{handler: h, file: file}
		p.invoked.Add(1)
		bridge.Run(ictx, p.counting(done), iv.run(ictx))
	}
	return p.commit(spec, p.host.RegisterAutocmdSync(event, spec.Opts, fn))
}

// Function registers a non-blocking function handler. Any value the
// handler produces goes to the diagnostic sink, not the host.
func (p *Plugin) Function(name string, opts Options, h FunctionHandler) error {
	spec := Spec{Kind: KindFunction, Name: name, Opts: opts.withDefaults()}
	if err := p.claim(spec, h == nil); err != nil {
		return err
	}
	fn := func(args []string) {
		ictx := p.newContext(KindFunction, name)
		iv := functionInvocation{handler: h, args: normalizeArgs(args)}
		p.invoked.Add(1)
		bridge.Detach(ictx, p.reporter(), iv.run(ictx))
	}
	return p.commit(spec, p.host.RegisterFunction(name, spec.Opts, fn))
}

// FunctionSync registers a blocking function handler. The value the
// handler produces is delivered to the host through the completion
// callback.
func (p *Plugin) FunctionSync(name string, opts Options, h FunctionHandler) error {
	spec := Spec{Kind: KindFunction, Name: name, Sync: true, Opts: opts.withDefaults()}
	if err := p.claim(spec, h == nil); err != nil {
		return err
	}
	fn := func(args []string, done bridge.Done) {
		ictx := p.newContext(KindFunction, name)
		iv := functionInvocation{handler: h, args: normalizeArgs(args)}
		p.invoked.Add(1)
		bridge.Run(ictx, p.counting(done), iv.run(ictx))
	}
	return p.commit(spec, p.host.RegisterFunctionSync(name, spec.Opts, fn))
}

// Specs returns the registration records announced so far, in order.
func (p *Plugin) Specs() []Spec {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Spec, len(p.specs))
	for i, s := range p.specs {
		s.Opts = s.Opts.Clone()
		out[i] = s
	}
	return out
}

// Sink returns the plugin's diagnostic sink.
func (p *Plugin) Sink() *diag.Sink {
	return p.sink
}

// Stats is a point-in-time snapshot of plugin activity.
type Stats struct {
	// Registered is the number of successful registrations.
	Registered uint64
	// Invoked is the number of handler invocations received.
	Invoked uint64
	// Succeeded is the number of invocations that completed with a value.
	Succeeded uint64
	// Failed is the number of invocations that completed with an error
	// other than a recovered panic.
	Failed uint64
	// Panicked is the number of invocations that ended in a recovered panic.
	Panicked uint64
}

// Stats returns a snapshot of plugin activity.
func (p *Plugin) Stats() Stats {
	return Stats{
		Registered: p.registered.Load(),
		Invoked:    p.invoked.Load(),
		Succeeded:  p.succeeded.Load(),
		Failed:     p.failed.Load(),
		Panicked:   p.panicked.Load(),
	}
}

// claim validates a registration and reserves its kind/name key so a
// concurrent duplicate cannot slip through while the host call is in
// flight.
func (p *Plugin) claim(s Spec, nilHandler bool) error {
	if s.Name == "" {
		return fmt.Errorf("register %s: %w", s.Kind, ErrEmptyName)
	}
	if nilHandler {
		return fmt.Errorf("register %s %q: %w", s.Kind, s.Name, ErrNilHandler)
	}
	key := registrationKey(s.Kind, s.Name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.seen[key]; dup {
		return fmt.Errorf("register %s %q: %w", s.Kind, s.Name, ErrDuplicate)
	}
	p.seen[key] = struct{}{}
	return nil
}

// commit finalizes a claimed registration: on host success it records the
// spec, on failure it releases the claim and wraps the error.
func (p *Plugin) commit(s Spec, hostErr error) error {
	key := registrationKey(s.Kind, s.Name)
	p.mu.Lock()
	if hostErr != nil {
		delete(p.seen, key)
		p.mu.Unlock()
		return fmt.Errorf("register %s %q: %w", s.Kind, s.Name, hostErr)
	}
	p.specs = append(p.specs, s)
	p.mu.Unlock()
	p.registered.Add(1)
	return nil
}

func registrationKey(kind Kind, name string) string {
	return string(kind) + "\x00" + name
}

// newContext builds the per-invocation execution context.
func (p *Plugin) newContext(kind Kind, name string) *Context {
	return &Context{Context: p.ctx, Host: p.host, Kind: kind, Name: name}
}

// counting wraps a completion callback with outcome accounting.
func (p *Plugin) counting(done bridge.Done) bridge.Done {
	return func(err error, value any) {
		p.record(err)
		if done != nil {
			done(err, value)
		}
	}
}

// record tallies one invocation outcome. The three buckets are mutually
// exclusive.
func (p *Plugin) record(err error) {
	switch {
	case err == nil:
		p.succeeded.Add(1)
	case errors.Is(err, task.ErrPanicked):
		p.panicked.Add(1)
	default:
		p.failed.Add(1)
	}
}

// reporter wraps the sink with outcome accounting for detached paths.
func (p *Plugin) reporter() bridge.Reporter {
	return pluginReporter{p}
}

type pluginReporter struct {
	p *Plugin
}

func (r pluginReporter) Report(v any) {
	if err, isErr := v.(error); isErr {
		r.p.record(err)
	} else {
		r.p.succeeded.Add(1)
	}
	r.p.sink.Report(v)
}
