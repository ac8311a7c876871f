package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stormplug/plugin"
	"github.com/dshills/stormplug/task"
)

// DefaultCallTimeout bounds each interpreter execution. Lua code cannot
// be preempted from Go; the interpreter checks the deadline in its VM
// loop instead.
const DefaultCallTimeout = 5 * time.Second

// Script wraps one sandboxed Lua interpreter.
//
// gopher-lua's LState is not goroutine-safe. The mutex serializes all
// access, so handlers running on separate goroutines take turns on the
// interpreter.
type Script struct {
	mu sync.Mutex
	L  *lua.LState

	callTimeout time.Duration
	closed      bool
}

// Option configures a Script.
type Option func(*Script)

// WithCallTimeout overrides DefaultCallTimeout. Zero or negative
// disables the deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Script) {
		s.callTimeout = d
	}
}

// Load compiles and runs a Lua chunk, returning a Script holding the
// globals it defined.
func Load(source string, opts ...Option) (*Script, error) {
	s := newScript(opts)
	if err := s.do(func() error { return s.L.DoString(source) }); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// LoadFile is Load for a chunk on disk.
func LoadFile(path string, opts ...Option) (*Script, error) {
	s := newScript(opts)
	if err := s.do(func() error { return s.L.DoFile(path) }); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func newScript(opts []Option) *Script {
	s := &Script{callTimeout: DefaultCallTimeout}
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibraries(L)
	s.L = L
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// openSafeLibraries opens base, table, string and math. io, os, debug
// and package stay closed; handler scripts get no ambient authority.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// The base library brings chunk loaders along. Handler scripts must
	// not read the filesystem.
	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(fn, lua.LNil)
	}
}

// Command binds a global Lua function to a command handler. The Lua
// function receives (args, range) where range is a table with start and
// end fields.
func (s *Script) Command(fn string) plugin.CommandHandler {
	return func(ctx *plugin.Context, args []string, rng plugin.Range) *task.Task {
		return task.New(func(tctx context.Context) (any, error) {
			return s.call(tctx, fn, args, rangeArg(rng))
		})
	}
}

// Autocmd binds a global Lua function to an autocommand handler. The
// Lua function receives (file).
func (s *Script) Autocmd(fn string) plugin.AutocmdHandler {
	return func(ctx *plugin.Context, file string) *task.Task {
		return task.New(func(tctx context.Context) (any, error) {
			return s.call(tctx, fn, file)
		})
	}
}

// Function binds a global Lua function to a function handler. The Lua
// function receives (args).
func (s *Script) Function(fn string) plugin.FunctionHandler {
	return func(ctx *plugin.Context, args []string) *task.Task {
		return task.New(func(tctx context.Context) (any, error) {
			return s.call(tctx, fn, args)
		})
	}
}

// Call invokes a global Lua function with Go arguments and returns its
// converted result. Handler functions may return at most one value;
// zero returns yield nil.
func (s *Script) Call(fn string, args ...any) (any, error) {
	return s.call(context.Background(), fn, args...)
}

func (s *Script) call(ctx context.Context, fn string, args ...any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	fnVal := s.L.GetGlobal(fn)
	if fnVal.Type() != lua.LTFunction {
		return nil, fmt.Errorf("global %q: %w", fn, ErrNotFunction)
	}

	stackTop := s.L.GetTop()
	s.L.Push(fnVal)
	for _, arg := range args {
		s.L.Push(toLua(s.L, arg))
	}

	if err := s.run(ctx, func() error {
		return s.L.PCall(len(args), lua.MultRet, nil)
	}); err != nil {
		return nil, &ScriptError{Fn: fn, Err: err}
	}

	nret := s.L.GetTop() - stackTop
	if nret == 0 {
		return nil, nil
	}
	if nret > 1 {
		s.L.Pop(nret)
		return nil, fmt.Errorf("global %q returned %d values: %w", fn, nret, ErrTooManyReturns)
	}
	out := toGo(s.L.Get(stackTop + 1))
	s.L.Pop(1)
	return out, nil
}

// do runs one interpreter operation under the lock.
func (s *Script) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.run(context.Background(), fn)
}

// run applies the call deadline and contains interpreter panics. The
// caller holds the lock.
func (s *Script) run(ctx context.Context, fn func() error) (err error) {
	if s.callTimeout > 0 {
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		s.L.SetContext(cctx)
		defer s.L.RemoveContext()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// IsClosed reports whether Close has been called.
func (s *Script) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close shuts the interpreter down. Further calls return ErrClosed.
// Closing twice is harmless.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

func rangeArg(rng plugin.Range) map[string]any {
	return map[string]any{
		"start": rng.Start,
		"end":   rng.End,
	}
}
