package batch

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"menugen/internal/domain"
	"menugen/internal/infra"
	"menugen/internal/providers/image"
)

const maxRetriesMessage = "Max retries exceeded"

// Config controls the scheduler pool.
type Config struct {
	// Workers caps the number of generation attempts in flight.
	Workers int
	// MaxRetries is the number of re-enqueues after a retryable provider
	// failure; a permanently failing item sees MaxRetries+1 attempts.
	MaxRetries int
	// DequeueDelay is the minimum delay between starts of successive
	// dequeues across the whole pool. Zero disables pacing.
	DequeueDelay time.Duration
	// RetryBackoff delays re-enqueueing a failed attempt. Zero re-enqueues
	// immediately.
	RetryBackoff time.Duration
}

// ProgressFunc observes terminal state changes. It is called once per
// resolved item with a snapshot taken under the registry lock, never
// mid-retry.
type ProgressFunc func(sessionID string, p Progress)

// Scheduler drains a single global priority queue of generation attempts with
// a fixed-size worker pool shared across all sessions. One dispatcher paces
// dequeues through a rate limiter; retries re-enter the queue with their
// attempt count on the entry.
type Scheduler struct {
	cfg       Config
	generator image.Generator
	logger    infra.Logger

	onProgress ProgressFunc

	limiter *rate.Limiter

	qmu     sync.Mutex
	cond    *sync.Cond
	queue   entryQueue
	seq     uint64
	stopped bool

	jobs *registry

	ctx      context.Context
	cancel   context.CancelFunc
	work     chan *QueueEntry
	wg       sync.WaitGroup
	stopOnce sync.Once

	now func() time.Time
}

// NewScheduler constructs a stopped scheduler; call Start to launch the pool.
func NewScheduler(cfg Config, generator image.Generator, logger infra.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:       cfg,
		generator: generator,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Every(cfg.DequeueDelay), 1),
		jobs:      newRegistry(),
		ctx:       ctx,
		cancel:    cancel,
		work:      make(chan *QueueEntry),
		now:       time.Now,
	}
	s.cond = sync.NewCond(&s.qmu)
	return s
}

// OnProgress registers the progress observer. Must be called before Start.
func (s *Scheduler) OnProgress(fn ProgressFunc) {
	s.onProgress = fn
}

// Start launches the dispatcher and worker pool.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.dispatch()
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info().
		Int("workers", s.cfg.Workers).
		Int("max_retries", s.cfg.MaxRetries).
		Dur("dequeue_delay", s.cfg.DequeueDelay).
		Msg("batch: scheduler started")
}

// Stop drains the pool cooperatively: in-flight attempts finish their
// provider call, queued entries stay unprocessed.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.qmu.Lock()
		s.stopped = true
		s.qmu.Unlock()
		s.cond.Broadcast()
	})
	s.wg.Wait()
	s.logger.Info().Msg("batch: scheduler stopped")
}

// AddBatch enqueues one generation attempt per item under the session id.
// The session's BatchJob is created on first enqueue.
func (s *Scheduler) AddBatch(sessionID string, items []domain.LineItem, priority int) error {
	if sessionID == "" || len(items) == 0 {
		return domain.ErrInvalidArgument
	}
	s.jobs.add(sessionID, len(items), s.now())

	s.qmu.Lock()
	for i := range items {
		s.seq++
		heap.Push(&s.queue, &QueueEntry{
			SessionID: sessionID,
			Item:      items[i],
			Priority:  priority,
			seq:       s.seq,
		})
	}
	s.qmu.Unlock()
	s.cond.Broadcast()

	s.logger.Info().
		Str("session_id", sessionID).
		Int("items", len(items)).
		Int("priority", priority).
		Msg("batch: enqueued")
	return nil
}

// Progress returns the session's live counters, or false when unknown.
func (s *Scheduler) Progress(sessionID string) (Progress, bool) {
	return s.jobs.progress(sessionID)
}

// Results returns a snapshot of the session's batch job, or false when unknown.
func (s *Scheduler) Results(sessionID string) (BatchJob, bool) {
	return s.jobs.results(sessionID)
}

// Cancel removes the session's queued entries and marks its batch failed.
// In-flight attempts complete their provider call but their results are
// discarded. Cancelling a finished batch returns false.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.qmu.Lock()
	kept := s.queue[:0]
	for _, entry := range s.queue {
		if entry.SessionID != sessionID {
			kept = append(kept, entry)
		}
	}
	s.queue = kept
	heap.Init(&s.queue)
	s.qmu.Unlock()

	if !s.jobs.cancel(sessionID, s.now()) {
		return false
	}
	s.logger.Info().Str("session_id", sessionID).Msg("batch: cancelled")
	return true
}

// SetPriority reorders the session's queued entries. Returns false when the
// session has no live batch.
func (s *Scheduler) SetPriority(sessionID string, priority int) bool {
	if !s.jobs.exists(sessionID) {
		return false
	}
	s.qmu.Lock()
	for _, entry := range s.queue {
		if entry.SessionID == sessionID {
			entry.Priority = priority
		}
	}
	heap.Init(&s.queue)
	s.qmu.Unlock()
	return true
}

// Cleanup removes finished batch jobs older than maxAge and returns the count
// removed.
func (s *Scheduler) Cleanup(maxAge time.Duration) int {
	return s.jobs.cleanup(s.now().Add(-maxAge))
}

// Statistics aggregates counters across all known batches.
func (s *Scheduler) Statistics() Statistics {
	return s.jobs.statistics()
}

// dispatch is the single consumer of the queue. The rate limiter enforces the
// minimum delay between successive dequeues; workers bound how many attempts
// run at once.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	defer close(s.work)
	for {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		entry, ok := s.pop()
		if !ok {
			return
		}
		select {
		case s.work <- entry:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) pop() (*QueueEntry, bool) {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	for len(s.queue) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return nil, false
	}
	return heap.Pop(&s.queue).(*QueueEntry), true
}

// push re-enqueues a retrying entry. Entries arriving after shutdown are
// dropped.
func (s *Scheduler) push(entry *QueueEntry) {
	s.qmu.Lock()
	if s.stopped {
		s.qmu.Unlock()
		return
	}
	s.seq++
	entry.seq = s.seq
	heap.Push(&s.queue, entry)
	s.qmu.Unlock()
	s.cond.Broadcast()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for entry := range s.work {
		s.attempt(entry)
	}
}

// attempt runs one generation attempt to a terminal state or a re-enqueue.
func (s *Scheduler) attempt(entry *QueueEntry) {
	if s.jobs.isCancelled(entry.SessionID) {
		return
	}
	s.jobs.markProcessing(entry.SessionID)

	outcome, err := s.generator.Generate(s.ctx, entry.Item)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		entry.Attempts++
		if entry.Attempts <= s.cfg.MaxRetries {
			s.logger.Debug().
				Err(err).
				Str("session_id", entry.SessionID).
				Str("line_item_id", entry.Item.ID).
				Int("attempt", entry.Attempts).
				Msg("batch: retrying generation")
			if s.cfg.RetryBackoff > 0 {
				time.AfterFunc(s.cfg.RetryBackoff, func() { s.push(entry) })
			} else {
				s.push(entry)
			}
			return
		}
		outcome = domain.GenerationOutcome{
			LineItemID:   entry.Item.ID,
			Status:       domain.OutcomeFailed,
			ErrorMessage: maxRetriesMessage,
		}
		s.logger.Warn().
			Str("session_id", entry.SessionID).
			Str("line_item_id", entry.Item.ID).
			Int("attempts", entry.Attempts).
			Msg("batch: retries exhausted")
	}
	if outcome.LineItemID == "" {
		outcome.LineItemID = entry.Item.ID
	}

	snapshot, recorded := s.jobs.recordOutcome(entry.SessionID, outcome, s.now())
	if !recorded {
		return
	}
	if s.onProgress != nil {
		s.onProgress(entry.SessionID, snapshot)
	}
}
