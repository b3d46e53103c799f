// Package admission holds edit identifiers back until the content platform
// has had time to replicate them, and re-admits items whose metadata lookup
// failed, down to a bounded retry budget.
package admission

import (
	"container/heap"
	"sync"
	"time"

	"vandalwatch/internal/models"
)

// Queue is a maturity-delayed queue of EditRefs. Offer stamps each item
// with a not-before timestamp; Poll is non-blocking and returns nothing
// while the earliest item is still immature. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items refHeap
	delay time.Duration
	now   func() time.Time
}

// New creates a queue with the given maturity delay.
func New(delay time.Duration) *Queue {
	return &Queue{delay: delay, now: time.Now}
}

// Offer inserts ref, eligible for Poll once the configured delay has
// elapsed. The retry counter on ref is preserved as given.
func (q *Queue) Offer(ref models.EditRef) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ref.NotBefore = q.now().Add(q.delay)
	heap.Push(&q.items, ref)
}

// Poll removes and returns the earliest matured item. The second return
// is false when the queue is empty or the head has not matured yet.
func (q *Queue) Poll() (models.EditRef, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 || q.items[0].NotBefore.After(q.now()) {
		return models.EditRef{}, false
	}
	return heap.Pop(&q.items).(models.EditRef), true
}

// Len returns the number of items held, matured or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// refHeap is a min-heap keyed by maturity timestamp.
type refHeap []models.EditRef

func (h refHeap) Len() int           { return len(h) }
func (h refHeap) Less(i, j int) bool { return h[i].NotBefore.Before(h[j].NotBefore) }
func (h refHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *refHeap) Push(x any)        { *h = append(*h, x.(models.EditRef)) }
func (h *refHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
