// Package spooler implements the in-memory job queue, priority ordering,
// single-worker dispatch loop, retry with delay, cancellation and lifecycle
// events at the center of the print agent.
package spooler

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"cleverprint/agent/job"
)

// Spooler owns the active queue, the in-flight job, and the terminal-state
// history. All mutation happens through its exported methods or the
// dispatch loop; callers never touch a *job.Job they didn't receive as a
// Clone.
type Spooler struct {
	cfg          ConfigProvider
	logger       Logger
	materializer Materializer
	executor     Executor
	historyStore HistoryStore
	bus          *bus

	mu          sync.Mutex
	active      []*job.Job
	current     *job.Job
	currentDone chan struct{}
	history     []*job.Job
	serverIDs   map[string]struct{}
	seq         uint64
	shuttingDown bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Spooler. historyStore may be nil to disable C8 audit
// logging entirely.
func New(cfg ConfigProvider, logger Logger, materializer Materializer, executor Executor, historyStore HistoryStore) *Spooler {
	if logger == nil {
		logger = nullLogger{}
	}
	return &Spooler{
		cfg:          cfg,
		logger:       logger,
		materializer: materializer,
		executor:     executor,
		historyStore: historyStore,
		bus:          newBus(),
		serverIDs:    make(map[string]struct{}),
		wake:         make(chan struct{}, 1),
	}
}

// Start launches the single dispatch-loop goroutine. It is safe to call
// once; calling it twice is a programmer error caught by the caller owning
// process lifecycle (cmd/cleverprint-agent).
func (s *Spooler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.dispatchLoop()
}

// Subscribe registers an event subscriber. Call the returned function to
// stop receiving events.
func (s *Spooler) Subscribe(buffer int) (<-chan Event, func()) {
	return s.bus.Subscribe(buffer)
}

func (s *Spooler) emit(ev Event) {
	ev.Timestamp = time.Now()
	s.bus.publish(ev)
}

// Enqueue validates and queues a new job. priority defaults to normal if
// empty/invalid; options are normalized per spec (copies>=1, pageSize A4,
// printBackground defaults to true unless the caller explicitly set it
// false) via opts.Normalize, applied here so every producer gets the same
// defaults regardless of how the job was submitted.
func (s *Spooler) Enqueue(payload job.Payload, opts job.Options, priority job.Priority, serverJobID string) (*job.Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if !priority.Valid() {
		priority = job.PriorityNormal
	}
	opts.Normalize()
	if opts.PrinterName == "" {
		opts.PrinterName = s.cfg.DefaultPrinter()
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if len(s.active) >= s.cfg.MaxQueueSize() {
		s.mu.Unlock()
		return nil, ErrQueueFull
	}
	if serverJobID != "" {
		if _, exists := s.serverIDs[serverJobID]; exists {
			s.mu.Unlock()
			return nil, fmt.Errorf("spooler: server job %s already in flight", serverJobID)
		}
	}

	s.seq++
	j := &job.Job{
		ID:          job.NewID(),
		ServerJobID: serverJobID,
		CreatedAt:   time.Now(),
		Priority:    priority,
		Status:      job.StatusQueued,
		Payload:     payload,
		Options:     opts,
		SeqNum:      s.seq,
	}
	s.active = append(s.active, j)
	if serverJobID != "" {
		s.serverIDs[serverJobID] = struct{}{}
	}
	s.mu.Unlock()

	s.signalWake()
	s.emit(Event{Type: EventJobAdded, Job: j.Clone()})
	return j.Clone(), nil
}

func (s *Spooler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel removes a queued job immediately, or flags the in-flight job as
// cancelled (advisory: its print is not interrupted, its outcome is
// discarded). Returns false if id matches nothing non-terminal.
func (s *Spooler) Cancel(id string) bool {
	s.mu.Lock()
	for i, j := range s.active {
		if j.ID == id {
			s.active = append(s.active[:i], s.active[i+1:]...)
			j.Status = job.StatusCancelled
			s.removeServerID(j)
			s.history = append(s.history, j)
			s.mu.Unlock()
			if j.TempOwnedBy && j.TempPath != "" {
				os.Remove(j.TempPath)
			}
			s.recordHistory(j)
			s.emit(Event{Type: EventJobUpdated, Job: j.Clone()})
			return true
		}
	}
	if s.current != nil && s.current.ID == id && !s.current.Cancelled {
		s.current.Cancelled = true
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	return false
}

// Retry resets a failed job back to queued. Per spec §9's open question on
// retrying a job already moved to history, this implementation resolves it:
// failed jobs live only in history, so Retry searches history, not active.
// It is a no-op (returns false) for jobs in any other state, including
// jobs already removed from history.
func (s *Spooler) Retry(id string) bool {
	s.mu.Lock()
	for i, j := range s.history {
		if j.ID == id && j.Status == job.StatusFailed {
			s.history = append(s.history[:i], s.history[i+1:]...)
			j.RetryCount = 0
			j.LastError = ""
			j.Status = job.StatusQueued
			j.Cancelled = false
			s.seq++
			j.SeqNum = s.seq
			s.active = append(s.active, j)
			s.mu.Unlock()
			s.signalWake()
			s.emit(Event{Type: EventJobUpdated, Job: j.Clone()})
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// ClearCompleted drops completed entries from history; failed and cancelled
// jobs are retained. Returns the number removed. Idempotent.
func (s *Spooler) ClearCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.history[:0:0]
	removed := 0
	for _, j := range s.history {
		if j.Status == job.StatusCompleted {
			removed++
			continue
		}
		kept = append(kept, j)
	}
	s.history = kept
	return removed
}

// ListActive returns the active queue plus the in-flight job, if any.
func (s *Spooler) ListActive() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*job.Job, 0, len(s.active)+1)
	if s.current != nil {
		out = append(out, s.current.Clone())
	}
	for _, j := range s.active {
		out = append(out, j.Clone())
	}
	return out
}

// ListAll returns active plus history, deduplicated by ID, sorted by
// CreatedAt descending.
func (s *Spooler) ListAll() []*job.Job {
	s.mu.Lock()
	seen := make(map[string]struct{}, len(s.active)+len(s.history)+1)
	out := make([]*job.Job, 0, len(s.active)+len(s.history)+1)
	if s.current != nil {
		seen[s.current.ID] = struct{}{}
		out = append(out, s.current.Clone())
	}
	for _, j := range s.active {
		if _, ok := seen[j.ID]; ok {
			continue
		}
		seen[j.ID] = struct{}{}
		out = append(out, j.Clone())
	}
	for _, j := range s.history {
		if _, ok := seen[j.ID]; ok {
			continue
		}
		seen[j.ID] = struct{}{}
		out = append(out, j.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Get returns a single job by ID from either the active set, the in-flight
// slot, or history.
func (s *Spooler) Get(id string) (*job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.ID == id {
		return s.current.Clone(), true
	}
	for _, j := range s.active {
		if j.ID == id {
			return j.Clone(), true
		}
	}
	for _, j := range s.history {
		if j.ID == id {
			return j.Clone(), true
		}
	}
	return nil, false
}

// StatusSnapshot is the read-only view backing GET /api/status.
type StatusSnapshot struct {
	IsProcessing   bool
	QueueLength    int
	MaxQueueSize   int
	CurrentJob     *job.Job
	DefaultPrinter string
}

// Status returns a point-in-time snapshot of the spooler's condition.
func (s *Spooler) Status() StatusSnapshot {
	s.mu.Lock()
	snap := StatusSnapshot{
		IsProcessing: s.current != nil,
		QueueLength:  len(s.active),
		MaxQueueSize: s.cfg.MaxQueueSize(),
	}
	if s.current != nil {
		snap.CurrentJob = s.current.Clone()
	}
	s.mu.Unlock()
	snap.DefaultPrinter = s.cfg.DefaultPrinter()
	return snap
}

// SetDefaultPrinter writes through to the Config Store.
func (s *Spooler) SetDefaultPrinter(name string) error {
	return s.cfg.SetDefaultPrinter(name)
}

// QueueFull reports whether enqueue would currently reject with
// ErrQueueFull; used by the remote client to stop mid-batch without
// attempting (and failing) each remaining job.
func (s *Spooler) QueueFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) >= s.cfg.MaxQueueSize()
}

// Shutdown stops accepting new jobs and waits up to timeout for the
// in-flight job to finish. If it does not finish in time, the job is
// flagged cancelled (its eventual OS-level result is discarded) and
// Shutdown returns regardless — the child print process is never killed.
func (s *Spooler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.shuttingDown = true
	cur := s.current
	done := s.currentDone
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	if cur == nil {
		s.wg.Wait()
		return nil
	}

	select {
	case <-done:
		// The in-flight job finished naturally within the budget; the
		// dispatch loop goroutine exits promptly since ctx is cancelled
		// and active is otherwise untouched.
		s.wg.Wait()
	case <-time.After(timeout):
		// Budget exceeded: the print command is not killed (advisory
		// cancellation only). Flag it and return without waiting for the
		// goroutine — the dispatch loop finishes asynchronously once the
		// OS command exits.
		s.mu.Lock()
		if s.current != nil && s.current.ID == cur.ID {
			s.current.Cancelled = true
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Spooler) removeServerID(j *job.Job) {
	if j.ServerJobID != "" {
		delete(s.serverIDs, j.ServerJobID)
	}
}

func (s *Spooler) recordHistory(j *job.Job) {
	if s.historyStore != nil {
		s.historyStore.Record(j.Clone())
	}
}

// popNext removes and returns the highest-priority, oldest-enqueued job
// from active, or nil if the queue is empty. Must be called with mu held.
func (s *Spooler) popNext() *job.Job {
	if len(s.active) == 0 {
		return nil
	}
	bestIdx := 0
	for i := 1; i < len(s.active); i++ {
		if less(s.active[i], s.active[bestIdx]) {
			bestIdx = i
		}
	}
	j := s.active[bestIdx]
	s.active = append(s.active[:bestIdx], s.active[bestIdx+1:]...)
	return j
}

func less(a, b *job.Job) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() < b.Priority.Rank()
	}
	return a.SeqNum < b.SeqNum
}

func (s *Spooler) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		j := s.popNext()
		if j == nil {
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-time.After(time.Second):
			case <-s.ctx.Done():
				return
			}
			continue
		}
		j.Status = job.StatusProcessing
		done := make(chan struct{})
		s.current = j
		s.currentDone = done
		s.mu.Unlock()
		s.emit(Event{Type: EventJobUpdated, Job: j.Clone()})

		s.runAttempt(j)
		close(done)
	}
}

// runAttempt performs one materialize+print attempt for j and transitions
// it according to the outcome (completed, retried, failed, or discarded as
// cancelled). It always runs to completion even if Shutdown has begun,
// matching the "in-flight print is not interrupted" guarantee.
func (s *Spooler) runAttempt(j *job.Job) {
	mctx, mcancel := context.WithTimeout(context.Background(), 30*time.Second)
	path, owned, err := s.materializer.Materialize(mctx, j.Payload)
	mcancel()
	if err != nil {
		s.mu.Lock()
		cancelled := j.Cancelled
		s.mu.Unlock()
		if cancelled {
			s.finishCancelled(j)
			return
		}
		s.logger.Warn("materialize failed", "job", j.ID, "error", err)
		s.handleAttemptFailure(j, fmt.Errorf("materialize: %w", err))
		return
	}

	s.mu.Lock()
	j.TempPath = path
	j.TempOwnedBy = owned
	j.Status = job.StatusPrinting
	s.mu.Unlock()
	s.emit(Event{Type: EventJobUpdated, Job: j.Clone()})

	pctx, pcancel := context.WithTimeout(context.Background(), 30*time.Second)
	printErr := s.executor.Print(pctx, path, j.Options)
	pcancel()

	if owned {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("failed to remove temp pdf", "path", path, "error", rmErr)
		}
	}

	s.mu.Lock()
	j.TempPath = ""
	j.TempOwnedBy = false
	cancelled := j.Cancelled
	s.mu.Unlock()

	if cancelled {
		s.finishCancelled(j)
		return
	}

	if printErr != nil {
		s.logger.Warn("print failed", "job", j.ID, "error", printErr)
		s.handleAttemptFailure(j, fmt.Errorf("print: %w", printErr))
		return
	}

	s.finishCompleted(j)
}

func (s *Spooler) handleAttemptFailure(j *job.Job, err error) {
	s.mu.Lock()
	j.LastError = err.Error()
	maxRetries := s.cfg.MaxRetries()
	if j.RetryCount < maxRetries {
		j.RetryCount++
		j.Status = job.StatusQueued
		s.seq++
		j.SeqNum = 0 // head of queue: lower than every currently-queued SeqNum
		s.active = append([]*job.Job{j}, s.active...)
		s.current = nil
		delay := s.cfg.RetryDelay()
		s.mu.Unlock()

		s.emit(Event{Type: EventJobUpdated, Job: j.Clone()})
		s.sleepRetryDelay(delay)
		s.signalWake()
		return
	}

	j.Status = job.StatusFailed
	s.current = nil
	s.removeServerID(j)
	s.history = append(s.history, j)
	s.mu.Unlock()

	s.recordHistory(j)
	s.emit(Event{Type: EventJobFailed, Job: j.Clone(), Err: err})
}

func (s *Spooler) sleepRetryDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
	}
}

func (s *Spooler) finishCompleted(j *job.Job) {
	s.mu.Lock()
	j.Status = job.StatusCompleted
	s.current = nil
	s.removeServerID(j)
	s.history = append(s.history, j)
	s.mu.Unlock()

	s.recordHistory(j)
	s.emit(Event{Type: EventJobCompleted, Job: j.Clone()})
}

func (s *Spooler) finishCancelled(j *job.Job) {
	s.mu.Lock()
	j.Status = job.StatusCancelled
	s.current = nil
	s.removeServerID(j)
	s.history = append(s.history, j)
	s.mu.Unlock()

	s.recordHistory(j)
	s.emit(Event{Type: EventJobUpdated, Job: j.Clone()})
}
