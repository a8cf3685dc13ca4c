package realtime

import (
	"sync"
	"time"

	"github.com/mydr24/shared/contracts"
)

type queueEntry struct {
	env        *contracts.Envelope
	enqueuedAt time.Time
}

// OutboundQueue holds envelopes awaiting a live connection. Draining yields
// critical entries first, then high, then normal, FIFO within each tier.
//
// The queue is bounded. When full, a critical or high push evicts the
// oldest entry from the lowest tier at or below the incoming priority; a
// normal push is rejected with ErrQueueFull so the caller sees
// backpressure instead of silent unbounded growth.
type OutboundQueue struct {
	mu       sync.Mutex
	capacity int
	// One FIFO slice per priority, indexed by Priority.Rank.
	tiers [3][]queueEntry
}

// NewOutboundQueue creates a queue holding at most capacity envelopes.
func NewOutboundQueue(capacity int) *OutboundQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &OutboundQueue{capacity: capacity}
}

// Push stores an envelope for later transmission.
func (q *OutboundQueue) Push(env *contracts.Envelope) error {
	rank := env.Priority.Rank()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() >= q.capacity {
		if !q.evictLocked(rank) {
			return ErrQueueFull
		}
	}

	q.tiers[rank] = append(q.tiers[rank], queueEntry{env: env, enqueuedAt: time.Now()})
	return nil
}

// evictLocked drops the oldest entry from the lowest-priority non-empty
// tier at or below the incoming rank. It reports whether room was made.
func (q *OutboundQueue) evictLocked(incomingRank int) bool {
	for rank := len(q.tiers) - 1; rank >= incomingRank; rank-- {
		if len(q.tiers[rank]) > 0 {
			q.tiers[rank] = q.tiers[rank][1:]
			return true
		}
	}
	return false
}

// Drain removes and returns every queued envelope in transmission order:
// priority tier first, arrival order within a tier.
func (q *OutboundQueue) Drain() []*contracts.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*contracts.Envelope, 0, q.lenLocked())
	for rank := range q.tiers {
		for _, entry := range q.tiers[rank] {
			out = append(out, entry.env)
		}
		q.tiers[rank] = nil
	}
	return out
}

// Len returns the number of queued envelopes.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *OutboundQueue) lenLocked() int {
	n := 0
	for rank := range q.tiers {
		n += len(q.tiers[rank])
	}
	return n
}
