package task

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Func is the unit of asynchronous work. It either returns a value or an
// error; the context is the one passed to Start or Run.
type Func func(ctx context.Context) (any, error)

// State represents the lifecycle state of a Task.
type State string

const (
	// StatePending indicates the task has not been started.
	StatePending State = "pending"
	// StateRunning indicates the task function is executing.
	StateRunning State = "running"
	// StateSucceeded indicates the task completed with a value.
	StateSucceeded State = "succeeded"
	// StateFailed indicates the task completed with an error.
	StateFailed State = "failed"
)

// Task is a single-shot asynchronous computation. It runs at most once and
// records exactly one outcome: a value or an error, never both.
//
// The zero value is not usable; create tasks with New, Completed, or Failed.
type Task struct {
	fn Func

	// started flips exactly once, on the first Start or Run.
	started atomic.Bool

	// done is closed when the outcome has been recorded.
	done chan struct{}

	// doneOnce ensures done is closed exactly once.
	doneOnce sync.Once

	// mu protects state, value, and err.
	mu    sync.RWMutex
	state State
	value any
	err   error
}

// New creates a Task that will run fn when started. A nil fn behaves as an
// immediately succeeding computation with a nil value.
func New(fn Func) *Task {
	return &Task{
		fn:    fn,
		done:  make(chan struct{}),
		state: StatePending,
	}
}

// Completed returns a task that has already succeeded with v.
func Completed(v any) *Task {
	t := New(nil)
	t.started.Store(true)
	t.finish(v, nil)
	return t
}

// Failed returns a task that has already failed with err.
func Failed(err error) *Task {
	t := New(nil)
	t.started.Store(true)
	t.finish(nil, err)
	return t
}

// Start launches the computation on its own goroutine and returns
// immediately. It returns false without doing anything if the task has
// already been started.
func (t *Task) Start(ctx context.Context) bool {
	if !t.started.CompareAndSwap(false, true) {
		return false
	}
	go t.execute(ctx)
	return true
}

// Run executes the computation on the calling goroutine and returns its
// outcome. If the task was already started, Run waits for that outcome
// instead of running the function again.
func (t *Task) Run(ctx context.Context) (any, error) {
	if !t.started.CompareAndSwap(false, true) {
		return t.Wait(ctx)
	}
	t.execute(ctx)
	return t.Outcome()
}

// execute runs fn with panic containment and records the outcome.
func (t *Task) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.finish(nil, &PanicError{Value: r, Stack: string(debug.Stack())})
		}
	}()

	if t.fn == nil {
		t.finish(nil, nil)
		return
	}

	t.mu.Lock()
	t.state = StateRunning
	t.mu.Unlock()

	v, err := t.fn(ctx)
	t.finish(v, err)
}

// finish records the outcome and closes the done channel exactly once.
func (t *Task) finish(v any, err error) {
	t.doneOnce.Do(func() {
		t.mu.Lock()
		if err != nil {
			t.value = nil
			t.err = err
			t.state = StateFailed
		} else {
			t.value = v
			t.state = StateSucceeded
		}
		t.mu.Unlock()
		close(t.done)
	})
}

// Done returns a channel that's closed when the computation completes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the recorded value and error. Before the task is done it
// returns nil and ErrNotDone.
func (t *Task) Outcome() (any, error) {
	select {
	case <-t.done:
	default:
		return nil, ErrNotDone
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value, t.err
}

// Wait blocks until the task completes or ctx expires. A task that was
// never started will block until ctx expires.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.Outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Started reports whether Start or Run has been called.
func (t *Task) Started() bool {
	return t.started.Load()
}
