package batch

import (
	"sync"
	"time"

	"menugen/internal/domain"
)

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// BatchJob tracks one session's generation batch. Completed+Failed equals
// Total exactly when Status is completed.
type BatchJob struct {
	SessionID string
	Status    BatchStatus
	Total     int
	Completed int
	Failed    int
	Results   []domain.GenerationOutcome
	StartTime time.Time
	EndTime   time.Time

	cancelled bool
}

// Progress is a read-only snapshot of batch counters.
type Progress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Percentage float64 `json:"percentage"`
}

// Statistics aggregates counters across all known batches.
type Statistics struct {
	TotalBatches         int     `json:"totalBatches"`
	CompletedBatches     int     `json:"completedBatches"`
	TotalImagesGenerated int     `json:"totalImagesGenerated"`
	SuccessRate          float64 `json:"successRate"`
}

// registry is the per-session job table. It has its own lock and callers
// never hold the queue lock while calling into it.
type registry struct {
	mu   sync.Mutex
	jobs map[string]*BatchJob
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*BatchJob)}
}

// add creates the job on first enqueue for a session, or extends a live job
// when more items arrive for it. A finished job is replaced by a fresh one.
func (r *registry) add(sessionID string, items int, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[sessionID]
	if !ok || job.Status == BatchCompleted || job.Status == BatchFailed {
		r.jobs[sessionID] = &BatchJob{
			SessionID: sessionID,
			Status:    BatchPending,
			Total:     items,
			StartTime: now,
		}
		return
	}
	job.Total += items
}

// markProcessing transitions pending to processing on first dequeue.
func (r *registry) markProcessing(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[sessionID]; ok && job.Status == BatchPending {
		job.Status = BatchProcessing
	}
}

// isCancelled reports whether the session's batch was cancelled, so workers
// can discard in-flight results.
func (r *registry) isCancelled(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[sessionID]
	return ok && job.cancelled
}

// recordOutcome registers one terminal outcome and returns a consistent
// progress snapshot taken under the registry lock. It reports false when the
// job is gone or cancelled and the result was discarded.
func (r *registry) recordOutcome(sessionID string, outcome domain.GenerationOutcome, now time.Time) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[sessionID]
	if !ok || job.cancelled {
		return Progress{}, false
	}
	job.Results = append(job.Results, outcome)
	if outcome.Status == domain.OutcomeSuccess {
		job.Completed++
	} else {
		job.Failed++
	}
	if job.Completed+job.Failed >= job.Total {
		job.Status = BatchCompleted
		job.EndTime = now
	}
	return snapshotProgress(job), true
}

// cancel marks a live batch failed. Cancelling a finished or unknown batch is
// a no-op returning false.
func (r *registry) cancel(sessionID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[sessionID]
	if !ok || job.cancelled || job.Status == BatchCompleted {
		return false
	}
	job.cancelled = true
	job.Status = BatchFailed
	job.EndTime = now
	return true
}

func (r *registry) exists(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[sessionID]
	return ok && job.Status != BatchCompleted && job.Status != BatchFailed
}

// progress returns the session's counters, or false when unknown.
func (r *registry) progress(sessionID string) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[sessionID]
	if !ok {
		return Progress{}, false
	}
	return snapshotProgress(job), true
}

// results returns a copy of the session's job, or false when unknown.
func (r *registry) results(sessionID string) (BatchJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[sessionID]
	if !ok {
		return BatchJob{}, false
	}
	snapshot := *job
	snapshot.Results = append([]domain.GenerationOutcome(nil), job.Results...)
	return snapshot, true
}

// cleanup removes finished jobs whose end time is older than the cutoff and
// returns the count removed.
func (r *registry) cleanup(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if !job.EndTime.IsZero() && job.EndTime.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

func (r *registry) statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Statistics{}
	successes, failures := 0, 0
	for _, job := range r.jobs {
		stats.TotalBatches++
		if job.Status == BatchCompleted {
			stats.CompletedBatches++
		}
		successes += job.Completed
		failures += job.Failed
	}
	stats.TotalImagesGenerated = successes
	if attempts := successes + failures; attempts > 0 {
		stats.SuccessRate = float64(successes) / float64(attempts) * 100
	}
	return stats
}

func snapshotProgress(job *BatchJob) Progress {
	p := Progress{Total: job.Total, Completed: job.Completed, Failed: job.Failed}
	if job.Total > 0 {
		p.Percentage = float64(job.Completed+job.Failed) / float64(job.Total) * 100
	}
	return p
}
