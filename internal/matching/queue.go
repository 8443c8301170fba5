// Package matching owns the in-memory pairing state: a FIFO queue of
// identities waiting for a partner and the live identity-to-partner map.
//
// Two invariants hold at every observable instant: an identity is never both
// queued and paired, and a pairing is always symmetric (both directions are
// inserted and removed together).
package matching

import "sync"

// Queue is the FIFO matchmaking queue plus the partner map. It is safe for
// concurrent use, though callers are expected to serialize pair formation so
// FIFO order is meaningful.
type Queue struct {
	mu       sync.Mutex
	waiting  []string            // FIFO order, oldest first
	queued   map[string]struct{} // membership index for waiting
	partners map[string]string   // both directions of every pairing
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		queued:   make(map[string]struct{}),
		partners: make(map[string]string),
	}
}

// Enqueue appends the identity to the queue. Returns false without mutating
// anything if the identity is already queued or currently paired.
func (q *Queue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; ok {
		return false
	}
	if _, ok := q.partners[id]; ok {
		return false
	}
	q.waiting = append(q.waiting, id)
	q.queued[id] = struct{}{}
	return true
}

// Remove takes the identity out of the queue if present.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; !ok {
		return false
	}
	delete(q.queued, id)
	for i, w := range q.waiting {
		if w == id {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	return true
}

// PopPair dequeues the two oldest waiting identities. Returns ok=false
// without mutating the queue if fewer than two identities are waiting.
func (q *Queue) PopPair() (a, b string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiting) < 2 {
		return "", "", false
	}
	a, b = q.waiting[0], q.waiting[1]
	q.waiting = q.waiting[2:]
	delete(q.queued, a)
	delete(q.queued, b)
	return a, b, true
}

// PushFront returns an identity to the head of the queue, preserving its
// position as the oldest waiter. Used when its prospective partner turned out
// to be stale.
func (q *Queue) PushFront(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; ok {
		return
	}
	if _, ok := q.partners[id]; ok {
		return
	}
	q.waiting = append([]string{id}, q.waiting...)
	q.queued[id] = struct{}{}
}

// Pair records a symmetric pairing between a and b. Both directions are
// inserted together.
func (q *Queue) Pair(a, b string) {
	q.mu.Lock()
	q.partners[a] = b
	q.partners[b] = a
	q.mu.Unlock()
}

// Unpair tears down the identity's pairing, removing both directions in one
// step. Returns the former partner and whether a pairing existed.
func (q *Queue) Unpair(id string) (partner string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	partner, ok = q.partners[id]
	if !ok {
		return "", false
	}
	delete(q.partners, id)
	delete(q.partners, partner)
	return partner, true
}

// PartnerOf returns the identity's current partner, or "" if unpaired.
func (q *Queue) PartnerOf(id string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.partners[id]
}

// IsQueued reports whether the identity is currently waiting.
func (q *Queue) IsQueued(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[id]
	return ok
}

// WaitingCount returns the number of identities in the queue.
func (q *Queue) WaitingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// PairCount returns the number of active pairings.
func (q *Queue) PairCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.partners) / 2
}
