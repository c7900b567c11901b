package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/metrics"
)

const memoryBackend = "memory"

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps contests and vote records in process memory. A single
// mutex makes every vote transaction a critical section, so the re-read,
// increment and insert cannot interleave with another vote.
type MemoryStore struct {
	mu       sync.RWMutex
	contests map[string]*model.Contest
	votes    map[string][]model.VoteRecord // contest id -> records in insertion order
	voted    map[string]map[string]struct{} // contest id -> origins
	total    int64
	closed   bool

	now                   func() time.Time
	preload               []model.Contest
	metricsUpdateInterval time.Duration

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMemoryStore creates an empty store and starts its metrics updater,
// which runs until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		contests:              make(map[string]*model.Contest),
		votes:                 make(map[string][]model.VoteRecord),
		voted:                 make(map[string]map[string]struct{}),
		now:                   time.Now,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, c := range s.preload {
		_ = s.CreateContest(ctx, c)
	}
	s.preload = nil

	s.startMetricsUpdater(ctx)
	return s
}

// Name implements Store.
func (s *MemoryStore) Name() string { return memoryBackend }

// CreateContest implements Store.
func (s *MemoryStore) CreateContest(_ context.Context, c model.Contest) (err error) {
	defer func(start time.Time) { Observe(memoryBackend, "create_contest", start, err) }(time.Now())

	if err := c.Validate(); err != nil {
		return err
	}
	c = c.Clone()
	for i := range c.Choices {
		c.Choices[i].Votes = 0
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.contests[c.ID]; ok {
		return fmt.Errorf("%w: %s", model.ErrContestExists, c.ID)
	}
	s.contests[c.ID] = &c
	return nil
}

// GetContest implements vote.Store.
func (s *MemoryStore) GetContest(_ context.Context, id string) (c model.Contest, err error) {
	defer func(start time.Time) { Observe(memoryBackend, "get_contest", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Contest{}, ErrStoreClosed
	}
	stored, ok := s.contests[id]
	if !ok {
		return model.Contest{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, id)
	}
	return stored.Clone(), nil
}

// VoteExists implements vote.Store.
func (s *MemoryStore) VoteExists(ctx context.Context, contestID, origin string) (exists bool, err error) {
	defer func(start time.Time) { Observe(memoryBackend, "vote_exists", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	_, exists = s.voted[contestID][origin]
	return exists, nil
}

// IncrementCounterTransactionally implements vote.Store.
func (s *MemoryStore) IncrementCounterTransactionally(ctx context.Context, rec model.VoteRecord) (c model.Contest, err error) {
	defer func(start time.Time) { Observe(memoryBackend, "increment", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return model.Contest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Contest{}, ErrStoreClosed
	}

	stored, ok := s.contests[rec.ContestID]
	if !ok {
		return model.Contest{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, rec.ContestID)
	}
	idx := -1
	for i := range stored.Choices {
		if stored.Choices[i].ID == rec.Choice {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Contest{}, fmt.Errorf("%w: %s/%s", model.ErrUnknownChoice, rec.ContestID, rec.Choice)
	}
	origins := s.voted[rec.ContestID]
	if _, dup := origins[rec.Origin]; dup {
		return model.Contest{}, fmt.Errorf("%w: %s", model.ErrVoteExists, rec.ContestID)
	}

	// all checks passed; nothing below can fail
	if origins == nil {
		origins = make(map[string]struct{})
		s.voted[rec.ContestID] = origins
	}
	origins[rec.Origin] = struct{}{}
	s.votes[rec.ContestID] = append(s.votes[rec.ContestID], rec)
	stored.Choices[idx].Votes++
	s.total++

	return stored.Clone(), nil
}

// ListContests implements Store.
func (s *MemoryStore) ListContests(_ context.Context) ([]model.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]model.Contest, 0, len(s.contests))
	for _, c := range s.contests {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListVotes implements Store.
func (s *MemoryStore) ListVotes(_ context.Context, contestID string) ([]model.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := s.contests[contestID]; !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	return append([]model.VoteRecord(nil), s.votes[contestID]...), nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{Contests: len(s.contests), Votes: s.total}, nil
}

// Close stops the metrics updater. Later calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				if n, err := s.Count(ctx); err == nil {
					metrics.UpdateContests(n.Contests)
				}
			}
		}
	}()
}
