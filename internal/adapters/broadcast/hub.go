// Package broadcast fans contest result snapshots out to live subscribers.
//
// Each subscription holds at most one pending snapshot. A slow reader never
// blocks the publisher: a newer snapshot replaces the one it has not read
// yet, so readers always converge on the latest state.
package broadcast

import (
	"sync"

	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/pkg/metrics"
)

// Hub routes snapshots to the subscribers of each contest.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	last   map[string]int64
	count  int
	closed bool
}

// Subscription receives snapshots for one contest until closed.
type Subscription struct {
	// C delivers snapshots. It is closed when the subscription or the hub closes.
	C <-chan types.ContestView

	ch        chan types.ContestView
	contestID string
	hub       *Hub
	once      sync.Once
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
		last: make(map[string]int64),
	}
}

// Subscribe registers interest in a contest. On a closed hub the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe(contestID string) *Subscription {
	ch := make(chan types.ContestView, 1)
	s := &Subscription{C: ch, ch: ch, contestID: contestID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	set, ok := h.subs[contestID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[contestID] = set
	}
	set[s] = struct{}{}
	h.count++
	metrics.UpdateSubscribers(h.count)
	return s
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// ContestID returns the contest this subscription follows.
func (s *Subscription) ContestID() string { return s.contestID }

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.contestID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.contestID)
		delete(h.last, s.contestID)
	}
	close(s.ch)
	h.count--
	metrics.UpdateSubscribers(h.count)
}

// HasSubscribers reports whether anyone follows the contest.
func (h *Hub) HasSubscribers(contestID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[contestID]) > 0
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Publish delivers view to every subscriber of its contest. Snapshots that
// carry no more votes than the last one delivered are dropped, since vote
// counts only grow and workers may finish out of order.
func (h *Hub) Publish(view types.ContestView) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[view.ID]
	if len(set) == 0 {
		return
	}
	if last, ok := h.last[view.ID]; ok && view.Total <= last {
		metrics.RecordBroadcastDrop("stale")
		return
	}
	h.last[view.ID] = view.Total

	for s := range set {
		select {
		case s.ch <- view:
			metrics.RecordBroadcastDelivery()
			continue
		default:
		}
		// Unread snapshot pending; replace it.
		select {
		case <-s.ch:
			metrics.RecordBroadcastDrop("superseded")
		default:
		}
		select {
		case s.ch <- view:
			metrics.RecordBroadcastDelivery()
		default:
			metrics.RecordBroadcastDrop("full")
		}
	}
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for s := range set {
			s.once.Do(func() {})
			close(s.ch)
		}
		delete(h.subs, id)
	}
	h.last = make(map[string]int64)
	h.count = 0
	metrics.UpdateSubscribers(0)
}
