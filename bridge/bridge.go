package bridge

import (
	"context"
	"sync/atomic"

	"github.com/dshills/stormplug/task"
)

// Done is the host-native completion callback for blocking invocations:
// error-first, success value second. The host supplies a fresh one with
// every blocking invocation and expects exactly one firing.
type Done func(err error, value any)

// Reporter receives the outcomes of detached computations. diag.Sink
// implements it.
type Reporter interface {
	Report(v any)
}

// Once wraps done so that only the first firing is delivered; later
// firings are silently dropped. A nil done yields a callable no-op.
func Once(done Done) Done {
	var fired atomic.Bool
	return func(err error, value any) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		if done == nil {
			return
		}
		done(err, value)
	}
}

// Run starts t and delivers its outcome to done exactly once: failures
// deliver (err, nil), successes deliver (nil, value). A nil task completes
// immediately with (nil, nil). Run returns without waiting for the
// computation; the host treats the invocation as pending until done fires.
func Run(ctx context.Context, done Done, t *task.Task) {
	once := Once(done)
	if t == nil {
		once(nil, nil)
		return
	}
	t.Start(ctx)
	go func() {
		<-t.Done()
		v, err := t.Outcome()
		if err != nil {
			once(err, nil)
			return
		}
		once(nil, v)
	}()
}

// Detach starts t and forwards its outcome to r: failures report the
// error, successes report the value. Stray success values are forwarded,
// not discarded. Nothing reaches a completion callback and nothing
// propagates to the caller; a nil Reporter drops both outcomes.
func Detach(ctx context.Context, r Reporter, t *task.Task) {
	if t == nil {
		return
	}
	t.Start(ctx)
	if r == nil {
		return
	}
	go func() {
		<-t.Done()
		v, err := t.Outcome()
		if err != nil {
			r.Report(err)
			return
		}
		r.Report(v)
	}()
}
