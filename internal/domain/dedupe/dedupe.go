// Package dedupe keeps a bounded in-process memory of (contest, origin) keys
// that already voted, so repeats are refused without a store round trip.
//
// A key is first claimed as pending while its vote is in flight and only
// becomes confirmed once the store has the vote. Callers treat a pending key
// held by someone else as "ask the store", never as a duplicate.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the result of a Claim.
type State int

const (
	// Claimed means the key was unknown and is now pending for the caller.
	Claimed State = iota
	// InFlight means another caller holds a pending claim on the key.
	InFlight
	// Confirmed means a vote for the key is known to be stored.
	Confirmed
)

// Deduper records seen keys.
type Deduper interface {
	// Claim atomically checks key and records it as pending if unknown.
	Claim(ctx context.Context, key string) State

	// Confirm marks key as stored, recording it if it was evicted meanwhile.
	Confirm(ctx context.Context, key string)

	// Unrecord forgets a pending key, used when a claimed vote did not make
	// it into the store. Confirmed keys are kept.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key builds the dedupe key for a voter origin within a contest.
func Key(contestID, origin string) string {
	return contestID + "\x00" + origin
}

type node struct {
	key        string
	pending    bool
	prev, next *node
}

// inMemoryDeduper is a map plus a doubly linked list in insertion order.
// When bounded, the oldest key is evicted first; eviction only means the
// store has to answer for that key again.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*node
	head    *node // oldest
	tail    *node // newest
	maxSize int   // <= 0 means unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*node)
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, key string) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, exists := d.seen[key]; exists {
		if n.pending {
			return InFlight
		}
		return Confirmed
	}
	d.push(key, true)
	return Claimed
}

func (d *inMemoryDeduper) Confirm(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, exists := d.seen[key]; exists {
		n.pending = false
		return
	}
	d.push(key, false)
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[key]; ok && n.pending {
		d.unlink(n)
	}
}

// push appends key as the newest entry, evicting the oldest when full.
// Caller holds d.mu.
func (d *inMemoryDeduper) push(key string, pending bool) {
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.unlink(d.head)
	}

	n := &node{key: key, pending: pending, prev: d.tail}
	if d.tail != nil {
		d.tail.next = n
	} else {
		d.head = n
	}
	d.tail = n
	d.seen[key] = n
	d.size.Add(1)
}

// unlink removes n from both the list and the map. Caller holds d.mu.
func (d *inMemoryDeduper) unlink(n *node) {
	if n == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	n.prev, n.next = nil, nil
	delete(d.seen, n.key)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
