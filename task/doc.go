// Package task provides the single-shot asynchronous computation type used
// throughout stormplug.
//
// A Task wraps a function that either produces a value or fails with an
// error. It runs at most once, records exactly one outcome, and exposes a
// channel-based completion signal so callers can start work without
// awaiting it.
//
// # Lifecycle
//
// Tasks transition through states:
//
//   - Pending: created but not started
//   - Running: the function is executing
//   - Succeeded: finished with a value
//   - Failed: finished with an error
//
// Success and failure are mutually exclusive. A Task cannot be restarted,
// and there is no cancellation of a running function: the context passed to
// Start or Run is handed to the function, and what it does with it is its
// own business.
//
// # Panic Containment
//
// A panic inside the task function never escapes. It is recovered and
// recorded as a failure wrapping *PanicError, which matches ErrPanicked
// via errors.Is.
//
// # Usage
//
// Start a computation and observe its completion:
//
//	t := task.New(func(ctx context.Context) (any, error) {
//	    return compute(ctx)
//	})
//	t.Start(ctx)
//
//	<-t.Done()
//	v, err := t.Outcome()
//
// Or run it synchronously:
//
//	v, err := task.New(fn).Run(ctx)
package task
