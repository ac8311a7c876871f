package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/stormplug/task"
)

// capture records a single completion for assertions.
type capture struct {
	fired chan struct{}
	count atomic.Int32
	mu    sync.Mutex
	err   error
	value any
}

func newCapture() *capture {
	return &capture{fired: make(chan struct{}, 8)}
}

func (c *capture) done(err error, value any) {
	c.mu.Lock()
	c.err = err
	c.value = value
	c.mu.Unlock()
	c.count.Add(1)
	c.fired <- struct{}{}
}

func (c *capture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.fired:
	case <-time.After(time.Second):
		t.Fatal("completion callback did not fire within timeout")
	}
}

func (c *capture) outcome() (error, any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err, c.value
}

// recorder is an in-memory Reporter.
type recorder struct {
	mu      sync.Mutex
	values  []any
	arrived chan struct{}
}

func newRecorder() *recorder {
	return &recorder{arrived: make(chan struct{}, 8)}
}

func (r *recorder) Report(v any) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
	r.arrived <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.arrived:
	case <-time.After(time.Second):
		t.Fatal("reporter did not receive a value within timeout")
	}
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

func TestOnce_SingleDelivery(t *testing.T) {
	c := newCapture()
	once := Once(c.done)

	once(nil, "first")
	once(nil, "second")
	once(errors.New("third"), nil)

	if got := c.count.Load(); got != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", got)
	}
	err, v := c.outcome()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if v != "first" {
		t.Errorf("expected first delivery to win, got %v", v)
	}
}

func TestOnce_ConcurrentDelivery(t *testing.T) {
	c := newCapture()
	once := Once(c.done)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			once(nil, n)
		}(i)
	}
	wg.Wait()

	if got := c.count.Load(); got != 1 {
		t.Errorf("expected exactly 1 delivery under contention, got %d", got)
	}
}

func TestOnce_NilDone(t *testing.T) {
	once := Once(nil)
	// Must be callable without panicking.
	once(nil, "ignored")
	once(errors.New("ignored"), nil)
}

func TestRun_Success(t *testing.T) {
	c := newCapture()
	tk := task.New(func(ctx context.Context) (any, error) {
		return 84, nil
	})

	Run(context.Background(), c.done, tk)
	c.wait(t)

	err, v := c.outcome()
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if v != 84 {
		t.Errorf("expected value 84, got %v", v)
	}
	if got := c.count.Load(); got != 1 {
		t.Errorf("expected exactly 1 firing, got %d", got)
	}
}

func TestRun_Failure(t *testing.T) {
	c := newCapture()
	wantErr := errors.New("boom")
	tk := task.New(func(ctx context.Context) (any, error) {
		return "partial", wantErr
	})

	Run(context.Background(), c.done, tk)
	c.wait(t)

	err, v := c.outcome()
	if err != wantErr {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if v != nil {
		t.Errorf("expected nil value on failure, got %v", v)
	}
}

func TestRun_NilTask(t *testing.T) {
	c := newCapture()
	Run(context.Background(), c.done, nil)
	c.wait(t)

	err, v := c.outcome()
	if err != nil || v != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", err, v)
	}
}

func TestRun_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := newCapture()
	tk := task.New(func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})

	returned := make(chan struct{})
	go func() {
		Run(context.Background(), c.done, tk)
		close(returned)
	}()

	select {
	case <-returned:
		// Run returned while the computation is still pending
	case <-time.After(time.Second):
		t.Fatal("Run blocked on the computation")
	}

	if got := c.count.Load(); got != 0 {
		t.Errorf("callback fired before the computation completed (%d times)", got)
	}
}

func TestRun_PanickingTask(t *testing.T) {
	c := newCapture()
	tk := task.New(func(ctx context.Context) (any, error) {
		panic("kaboom")
	})

	Run(context.Background(), c.done, tk)
	c.wait(t)

	err, v := c.outcome()
	if !errors.Is(err, task.ErrPanicked) {
		t.Errorf("expected a panic failure, got %v", err)
	}
	if v != nil {
		t.Errorf("expected nil value, got %v", v)
	}
	if got := c.count.Load(); got != 1 {
		t.Errorf("expected exactly 1 firing, got %d", got)
	}
}

func TestRun_NilDone(t *testing.T) {
	done := make(chan struct{})
	tk := task.New(func(ctx context.Context) (any, error) {
		close(done)
		return nil, nil
	})

	// The computation must still run even when nobody listens.
	Run(context.Background(), nil, tk)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run with a nil done")
	}
}

func TestDetach_FailureReported(t *testing.T) {
	r := newRecorder()
	wantErr := errors.New("disk full")
	tk := task.New(func(ctx context.Context) (any, error) {
		return nil, wantErr
	})

	Detach(context.Background(), r, tk)
	r.wait(t)

	got := r.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 report, got %d", len(got))
	}
	if got[0] != wantErr {
		t.Errorf("expected the failure to be reported, got %v", got[0])
	}
}

func TestDetach_SuccessReported(t *testing.T) {
	r := newRecorder()
	tk := task.New(func(ctx context.Context) (any, error) {
		return 7, nil
	})

	Detach(context.Background(), r, tk)
	r.wait(t)

	got := r.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 report, got %d", len(got))
	}
	if got[0] != 7 {
		t.Errorf("expected the stray success value 7, got %v", got[0])
	}
}

func TestDetach_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := newRecorder()
	tk := task.New(func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})

	returned := make(chan struct{})
	go func() {
		Detach(context.Background(), r, tk)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Detach blocked on the computation")
	}
	if len(r.all()) != 0 {
		t.Error("outcome reported before the computation completed")
	}
}

func TestDetach_NilReporter(t *testing.T) {
	done := make(chan struct{})
	tk := task.New(func(ctx context.Context) (any, error) {
		close(done)
		return nil, nil
	})

	// The computation must still run; the outcome is dropped.
	Detach(context.Background(), nil, tk)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run with a nil reporter")
	}
}

func TestDetach_NilTask(t *testing.T) {
	r := newRecorder()
	Detach(context.Background(), r, nil)

	time.Sleep(20 * time.Millisecond)
	if len(r.all()) != 0 {
		t.Errorf("nil task produced reports: %v", r.all())
	}
}

func TestDetach_PanickingTask(t *testing.T) {
	r := newRecorder()
	tk := task.New(func(ctx context.Context) (any, error) {
		panic("kaboom")
	})

	// Must not panic the caller or the process.
	Detach(context.Background(), r, tk)
	r.wait(t)

	got := r.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 report, got %d", len(got))
	}
	err, ok := got[0].(error)
	if !ok {
		t.Fatalf("expected an error report, got %T", got[0])
	}
	if !errors.Is(err, task.ErrPanicked) {
		t.Errorf("expected a panic failure, got %v", err)
	}
}

func BenchmarkOnce(b *testing.B) {
	for i := 0; i < b.N; i++ {
		once := Once(func(err error, value any) {})
		once(nil, nil)
	}
}

func BenchmarkRun_Completed(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		Run(ctx, func(err error, value any) { close(done) }, task.Completed(nil))
		<-done
	}
}
