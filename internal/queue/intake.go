// Package queue implements the master's per-role intake queues: one
// mutex-guarded FIFO plus one counting semaphore per role, matching the
// original master_node's QMutex+QSemaphore-guarded QQueue pair.
package queue

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Entry is anything an IntakeQueue can hold: the master enqueues
// *session.Connection values here, but the queue itself only needs
// host-identity for removal, so it depends on this narrow interface
// rather than importing the session package.
type Entry interface {
	HostID() string
}

// IntakeQueue is a FIFO of unpaired entries of one role. Invariant: the
// semaphore's available count equals len(items) at every quiescent
// point, and Dequeue is never called without a prior successful
// Acquire. The permit count is kept here: Enqueue releases one permit,
// Acquire takes one, and Remove reclaims the removed entry's permit.
// Dequeue itself does not check that a permit was acquired first.
type IntakeQueue struct {
	mu    sync.Mutex
	items *list.List
	sem   *semaphore.Weighted
}

// New builds an empty intake queue. cap bounds the queue only in the
// sense of the semaphore's weight ceiling; in practice this is set to a
// large number since the master never wants to reject a connect.
func New(cap int64) *IntakeQueue {
	sem := semaphore.NewWeighted(cap)
	// A fresh Weighted starts with all cap permits free; take them all
	// so the available count starts at zero, matching the empty queue.
	sem.TryAcquire(cap)
	return &IntakeQueue{items: list.New(), sem: sem}
}

// Enqueue appends entry under the queue's lock and releases one permit.
func (q *IntakeQueue) Enqueue(entry Entry) {
	q.mu.Lock()
	q.items.PushBack(entry)
	q.mu.Unlock()
	q.sem.Release(1)
}

// Len reports the current queue size under the lock, for the pairing
// loop's non-blocking poll (spec.md §4.2 step 1).
func (q *IntakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Acquire blocks for one permit — exactly one is available per
// enqueued, undequeued entry. Dequeue must not be called without a
// prior successful Acquire.
func (q *IntakeQueue) Acquire(ctx context.Context) error {
	return q.sem.Acquire(ctx, 1)
}

// Dequeue pops the oldest entry. Callers must have already Acquired a
// permit; Dequeue itself never blocks.
func (q *IntakeQueue) Dequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return nil, false
	}
	q.items.Remove(front)
	return front.Value.(Entry), true
}

// Remove drops the first entry matching host from the queue — used by
// on_disconnect (spec.md §4.2) when a queued connection dies before
// being matched. The item's outstanding permit is reclaimed in the same
// call via a non-blocking TryAcquire, preserving invariant (b): the
// semaphore's available count equals the queue size at every quiescent
// point.
func (q *IntakeQueue) Remove(host string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.items.Front(); e != nil; e = e.Next() {
		if e.Value.(Entry).HostID() == host {
			q.items.Remove(e)
			q.sem.TryAcquire(1)
			return true
		}
	}
	return false
}
