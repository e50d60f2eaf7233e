package spooler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cleverprint/agent/job"
)

// testConfig is a minimal in-memory ConfigProvider for tests.
type testConfig struct {
	mu             sync.Mutex
	maxRetries     int
	retryDelay     time.Duration
	maxQueueSize   int
	defaultPrinter string
}

func (c *testConfig) MaxRetries() int            { c.mu.Lock(); defer c.mu.Unlock(); return c.maxRetries }
func (c *testConfig) RetryDelay() time.Duration   { c.mu.Lock(); defer c.mu.Unlock(); return c.retryDelay }
func (c *testConfig) MaxQueueSize() int           { c.mu.Lock(); defer c.mu.Unlock(); return c.maxQueueSize }
func (c *testConfig) DefaultPrinter() string      { c.mu.Lock(); defer c.mu.Unlock(); return c.defaultPrinter }
func (c *testConfig) SetDefaultPrinter(n string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultPrinter = n
	return nil
}

func newTestConfig() *testConfig {
	return &testConfig{maxRetries: 3, retryDelay: 10 * time.Millisecond, maxQueueSize: 100}
}

// fakeMaterializer always succeeds, returning an owned fake path.
type fakeMaterializer struct{}

func (fakeMaterializer) Materialize(ctx context.Context, p job.Payload) (string, bool, error) {
	return "/tmp/fake.pdf", true, nil
}

// scriptedExecutor replays a fixed sequence of results; each call to Print
// consumes the next result. Optionally sleeps before returning.
type scriptedExecutor struct {
	mu      sync.Mutex
	results []error
	sleep   time.Duration
	calls   int
}

func (e *scriptedExecutor) Print(ctx context.Context, path string, opts job.Options) error {
	e.mu.Lock()
	idx := e.calls
	e.calls++
	e.mu.Unlock()

	if e.sleep > 0 {
		select {
		case <-time.After(e.sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if idx < len(e.results) {
		return e.results[idx]
	}
	return nil
}

func validPayload() job.Payload {
	return job.Payload{PDFBytes: "base64data"}
}

func drainUntil(t *testing.T, ch <-chan Event, typ EventType, jobID string, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ && (jobID == "" || (ev.Job != nil && ev.Job.ID == jobID)) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", typ)
		}
	}
}

func TestEnqueue_HappyPath(t *testing.T) {
	cfg := newTestConfig()
	s := New(cfg, nil, fakeMaterializer{}, &scriptedExecutor{}, nil)
	events, unsub := s.Subscribe(16)
	defer unsub()
	s.Start(context.Background())
	defer s.Shutdown(time.Second)

	j, err := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	drainUntil(t, events, EventJobCompleted, j.ID, 2*time.Second)

	got, ok := s.Get(j.ID)
	if !ok || got.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %+v ok=%v", got, ok)
	}
}

func TestEnqueue_InvalidPayload(t *testing.T) {
	cfg := newTestConfig()
	s := New(cfg, nil, fakeMaterializer{}, &scriptedExecutor{}, nil)
	_, err := s.Enqueue(job.Payload{}, job.Options{}, job.PriorityNormal, "")
	var invalid *job.ErrInvalidPayload
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestEnqueue_QueueFullBoundary(t *testing.T) {
	cfg := newTestConfig()
	cfg.maxQueueSize = 2
	s := New(cfg, nil, fakeMaterializer{}, &scriptedExecutor{sleep: time.Hour}, nil)
	s.Start(context.Background())
	defer s.Shutdown(50 * time.Millisecond)

	// First job is immediately popped by the dispatch loop and becomes
	// "current", freeing a slot in active — so fill with a second and
	// third to actually saturate maxQueueSize=2 in `active`.
	if _, err := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, ""); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the dispatch loop pick up job 1 as current

	if _, err := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, ""); err != nil {
		t.Fatalf("enqueue 2 (at maxQueueSize-1): %v", err)
	}
	if _, err := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, ""); err != nil {
		t.Fatalf("enqueue 3 (at maxQueueSize): %v", err)
	}
	if _, err := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, ""); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestRetry_TransientFailureThenSuccess(t *testing.T) {
	cfg := newTestConfig()
	cfg.maxRetries = 2
	cfg.retryDelay = 5 * time.Millisecond
	exec := &scriptedExecutor{results: []error{errors.New("paper jam"), errors.New("paper jam")}}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	events, unsub := s.Subscribe(32)
	defer unsub()
	s.Start(context.Background())
	defer s.Shutdown(time.Second)

	j, err := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	failed := 0
	completed := Event{}
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case ev := <-events:
			if ev.Job == nil || ev.Job.ID != j.ID {
				continue
			}
			switch ev.Type {
			case EventJobFailed:
				failed++
			case EventJobCompleted:
				completed = ev
				break loop
			}
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		}
	}

	if failed != 0 {
		t.Fatalf("expected zero jobFailed events, got %d", failed)
	}
	if completed.Job.RetryCount != 2 {
		t.Fatalf("expected retryCount=2, got %d", completed.Job.RetryCount)
	}
}

func TestRetry_ExhaustsAtMaxRetries(t *testing.T) {
	cfg := newTestConfig()
	cfg.maxRetries = 2
	cfg.retryDelay = 5 * time.Millisecond
	// Three failures scripted; a fourth (would-succeed) call must never happen.
	exec := &scriptedExecutor{results: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	events, unsub := s.Subscribe(32)
	defer unsub()
	s.Start(context.Background())
	defer s.Shutdown(time.Second)

	j, err := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ev := drainUntil(t, events, EventJobFailed, j.ID, 2*time.Second)
	if ev.Job.RetryCount != 2 {
		t.Fatalf("expected retryCount==maxRetries(2), got %d", ev.Job.RetryCount)
	}

	time.Sleep(50 * time.Millisecond)
	exec.mu.Lock()
	calls := exec.calls
	exec.mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected exactly 3 print attempts, got %d", calls)
	}
}

func TestCancel_QueuedJobIsImmediateAndIdempotent(t *testing.T) {
	cfg := newTestConfig()
	exec := &scriptedExecutor{sleep: 200 * time.Millisecond}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	s.Start(context.Background())
	defer s.Shutdown(time.Second)

	// Occupy the worker so the second job stays queued.
	_, _ = s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	time.Sleep(20 * time.Millisecond)
	j2, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")

	if ok := s.Cancel(j2.ID); !ok {
		t.Fatalf("expected first cancel to succeed")
	}
	if ok := s.Cancel(j2.ID); ok {
		t.Fatalf("expected second cancel to be a no-op")
	}

	got, ok := s.Get(j2.ID)
	if !ok || got.Status != job.StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", got)
	}
}

func TestCancel_DuringPrintSuppressesCompletion(t *testing.T) {
	cfg := newTestConfig()
	exec := &scriptedExecutor{sleep: 150 * time.Millisecond}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	events, unsub := s.Subscribe(32)
	defer unsub()
	s.Start(context.Background())
	defer s.Shutdown(time.Second)

	j, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")

	// Wait until it is actually printing, then cancel.
	deadline := time.After(time.Second)
	for {
		got, ok := s.Get(j.ID)
		if ok && got.Status == job.StatusPrinting {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never reached printing")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !s.Cancel(j.ID) {
		t.Fatal("expected cancel of in-flight job to succeed")
	}

	for {
		select {
		case ev := <-events:
			if ev.Job == nil || ev.Job.ID != j.ID {
				continue
			}
			if ev.Type == EventJobCompleted {
				t.Fatal("unexpected jobCompleted for a cancelled in-flight job")
			}
			if ev.Job.Status == job.StatusCancelled {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for cancellation to land")
		}
	}
}

func TestRetryJob_NoopWhenNotFailed(t *testing.T) {
	cfg := newTestConfig()
	exec := &scriptedExecutor{sleep: time.Hour}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	s.Start(context.Background())
	defer s.Shutdown(50 * time.Millisecond)

	j, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	time.Sleep(20 * time.Millisecond) // now "current", not failed

	if s.Retry(j.ID) {
		t.Fatal("expected retry of a non-failed job to be a no-op")
	}
}

func TestClearCompleted_IdempotentAndKeepsFailed(t *testing.T) {
	cfg := newTestConfig()
	cfg.maxRetries = 0
	exec := &scriptedExecutor{results: []error{errors.New("boom")}}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	events, unsub := s.Subscribe(16)
	defer unsub()
	s.Start(context.Background())
	defer s.Shutdown(time.Second)

	// The first Print call fails (maxRetries=0, so no retry); the second succeeds.
	jFail, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	drainUntil(t, events, EventJobFailed, jFail.ID, 2*time.Second)
	jOK, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	drainUntil(t, events, EventJobCompleted, jOK.ID, 2*time.Second)

	exec.results = nil // subsequent attempts should not matter; queue empty after

	n1 := s.ClearCompleted()
	if n1 != 1 {
		t.Fatalf("expected 1 cleared, got %d", n1)
	}
	n2 := s.ClearCompleted()
	if n2 != 0 {
		t.Fatalf("expected idempotent clear to remove 0, got %d", n2)
	}
	if got, ok := s.Get(jFail.ID); !ok || got.Status != job.StatusFailed {
		t.Fatalf("expected failed job retained in history, got %+v ok=%v", got, ok)
	}
}

func TestPriorityOvertaking(t *testing.T) {
	cfg := newTestConfig()
	gate := make(chan struct{})
	exec := &gatingExecutor{gate: gate}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	s.Start(context.Background())
	defer s.Shutdown(time.Second)

	n1, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	time.Sleep(20 * time.Millisecond) // n1 becomes current and blocks on gate
	n2, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	h, _ := s.Enqueue(validPayload(), job.Options{}, job.PriorityHigh, "")

	close(gate) // let n1 finish

	var order []string
	deadline := time.After(2 * time.Second)
	seen := map[string]bool{}
	for len(order) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out, order so far: %v", order)
		default:
		}
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur != nil && !seen[cur.ID] {
			seen[cur.ID] = true
			order = append(order, cur.ID)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if order[0] != n1.ID || order[1] != h.ID || order[2] != n2.ID {
		t.Fatalf("expected order [n1,h,n2], got %v (ids n1=%s h=%s n2=%s)", order, n1.ID, h.ID, n2.ID)
	}
}

// gatingExecutor blocks on gate for the first call only, then returns nil
// immediately for subsequent calls.
type gatingExecutor struct {
	mu    sync.Mutex
	gate  chan struct{}
	calls int
}

func (e *gatingExecutor) Print(ctx context.Context, path string, opts job.Options) error {
	e.mu.Lock()
	first := e.calls == 0
	e.calls++
	e.mu.Unlock()
	if first {
		<-e.gate
	}
	return nil
}

func TestShutdown_CompletesWithinBudget(t *testing.T) {
	cfg := newTestConfig()
	exec := &scriptedExecutor{sleep: 10 * time.Second}
	s := New(cfg, nil, fakeMaterializer{}, exec, nil)
	s.Start(context.Background())

	_, _ = s.Enqueue(validPayload(), job.Options{}, job.PriorityNormal, "")
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := s.Shutdown(200 * time.Millisecond); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("shutdown took too long: %v", elapsed)
	}
}
