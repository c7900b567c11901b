// Package service wires the vote recorder, its store and the live update
// pipeline into the operations the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/arena/internal/adapters/broadcast"
	updatequeue "github.com/okian/arena/internal/adapters/mq/queue"
	workerpool "github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/results"
	"github.com/okian/arena/internal/domain/types"
	"github.com/okian/arena/internal/domain/vote"
	"github.com/okian/arena/pkg/logger"
)

const stopTimeout = 10 * time.Second

// Service implements the API dependencies for the vote service.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	deduper  dedupe.Deduper
	queue    *updatequeue.InMemoryQueue
	pool     *workerpool.Pool
	hub      *broadcast.Hub
	recorder *vote.Recorder

	workerCount  int
	queueSize    int
	dedupeSize   int
	originSalt   string
	storeTimeout time.Duration
	seed         []model.Contest

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    10_000,
		dedupeSize:   50_000,
		storeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the components and seeds contests.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
	}
	s.logger.Info(ctx, "starting vote service", logger.String("backend", s.store.Name()))

	if err := s.seedContests(ctx); err != nil {
		return err
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = updatequeue.NewInMemoryQueue(updatequeue.WithCapacity(s.queueSize))
	s.hub = broadcast.New()
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store, s.hub)
	s.pool.Start(ctx)

	s.recorder = vote.NewRecorder(s.store,
		vote.WithDeduper(s.deduper),
		vote.WithPublisher(s.queue),
		vote.WithOriginSalt(s.originSalt),
		vote.WithTimeout(s.storeTimeout),
		vote.WithLogger(s.logger.Named("recorder")),
	)

	s.started = true
	s.logger.Info(ctx, "vote service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("seeded", len(s.seed)),
	)
	return nil
}

func (s *Service) seedContests(ctx context.Context) error {
	for _, c := range s.seed {
		err := s.store.CreateContest(ctx, c)
		switch {
		case err == nil:
			s.logger.Info(ctx, "contest created", logger.String("contest_id", c.ID), logger.String("kind", string(c.Kind)))
		case errors.Is(err, model.ErrContestExists):
			s.logger.Debug(ctx, "contest already present", logger.String("contest_id", c.ID))
		default:
			return fmt.Errorf("seed contest %s: %w", c.ID, err)
		}
	}
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping vote service")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.hub.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "vote service stopped")
}

func (s *Service) running() (*vote.Recorder, repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.recorder, s.store, nil
}

// RecordVote records one vote.
func (s *Service) RecordVote(ctx context.Context, b model.Ballot) (model.VoteRecord, error) {
	rec, _, err := s.running()
	if err != nil {
		return model.VoteRecord{}, err
	}
	return rec.RecordVote(ctx, b)
}

// Contest returns the current results of a contest.
func (s *Service) Contest(ctx context.Context, id string) (types.ContestView, error) {
	_, store, err := s.running()
	if err != nil {
		return types.ContestView{}, err
	}
	c, err := store.GetContest(ctx, id)
	if err != nil {
		return types.ContestView{}, readError(err)
	}
	return results.Compute(c, time.Now()), nil
}

// ListContests returns the current results of every contest.
func (s *Service) ListContests(ctx context.Context) ([]types.ContestView, error) {
	_, store, err := s.running()
	if err != nil {
		return nil, err
	}
	cs, err := store.ListContests(ctx)
	if err != nil {
		return nil, readError(err)
	}
	now := time.Now()
	out := make([]types.ContestView, len(cs))
	for i, c := range cs {
		out[i] = results.Compute(c, now)
	}
	return out, nil
}

// Subscribe follows live results of a contest. The caller must Close the
// subscription.
func (s *Service) Subscribe(contestID string) (*broadcast.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.hub.Subscribe(contestID), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (types.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.Stats{}, ErrNotStarted
	}

	counts, err := s.store.Count(ctx)
	if err != nil {
		return types.Stats{}, readError(err)
	}
	return types.Stats{
		Backend:       s.store.Name(),
		Contests:      counts.Contests,
		Votes:         counts.Votes,
		QueueSize:     s.queue.Len(ctx),
		QueueCapacity: s.queue.Cap(),
		Workers:       s.pool.Size(),
		Subscribers:   s.hub.Subscribers(),
		DedupeSize:    s.deduper.Size(),
	}, nil
}

func readError(err error) error {
	if errors.Is(err, model.ErrContestNotFound) {
		return fmt.Errorf("%w: %w", vote.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", vote.ErrStoreUnavailable, err)
}
