package batch

import "menugen/internal/domain"

// QueueEntry is one pending generation attempt. The scheduler owns it while
// queued; a worker owns it for the duration of a single attempt. Attempts
// counts provider failures so far, so retry state rides on the entry instead
// of on the worker.
type QueueEntry struct {
	SessionID string
	Item      domain.LineItem
	Priority  int
	Attempts  int

	seq uint64
}

// entryQueue is a container/heap ordering entries by priority (highest first)
// and, within equal priority, by submission order.
type entryQueue []*QueueEntry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q entryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *entryQueue) Push(x any) { *q = append(*q, x.(*QueueEntry)) }

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return entry
}
