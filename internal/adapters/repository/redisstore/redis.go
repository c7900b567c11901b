// Package redisstore stores contests and vote records in Redis.
//
// Layout, with p the key prefix and n the byte length of the contest id:
//
//	p contests                          set of contest ids
//	p contest:{n}:{id}                  hash: kind, title, created_at
//	p contest:{n}:{id}:choices          list of choice ids in order
//	p contest:{n}:{id}:labels           hash choice -> label
//	p contest:{n}:{id}:tally            hash choice -> votes
//	p contest:{n}:{id}:vote:{origin}    vote record (JSON), one per origin
//	p contest:{n}:{id}:votes            list of vote records (JSON)
//	p stats:votes                       total vote records
//
// Ids may contain ':', so the length prefix keeps one contest's keys from
// spelling another's.
//
// A vote runs under WATCH on the contest and the origin's vote key, so two
// concurrent votes from one origin cannot both commit.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

const backend = "redis"

var _ repository.Store = (*Store)(nil)

// Store is a repository.Store backed by Redis.
type Store struct {
	client       redis.UniversalClient
	prefix       string
	maxTxRetries int
	log          logger.Logger
	now          func() time.Time
}

type recordJSON struct {
	ID        string    `json:"id"`
	ContestID string    `json:"contestId"`
	Choice    string    `json:"choice"`
	Origin    string    `json:"origin"`
	VotedAt   time.Time `json:"votedAt"`
}

// Open connects to a single Redis node and checks it answers.
func Open(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return New(client, opts...), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:       client,
		prefix:       "arena:",
		maxTxRetries: 5,
		log:          logger.Get().Named("redis"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) contestsKey() string { return s.prefix + "contests" }
func (s *Store) totalKey() string { return s.prefix + "stats:votes" }
func (s *Store) contestKey(id string) string {
	return s.prefix + "contest:" + strconv.Itoa(len(id)) + ":" + id
}
func (s *Store) choicesKey(id string) string { return s.contestKey(id) + ":choices" }
func (s *Store) labelsKey(id string) string { return s.contestKey(id) + ":labels" }
func (s *Store) tallyKey(id string) string { return s.contestKey(id) + ":tally" }
func (s *Store) votesKey(id string) string { return s.contestKey(id) + ":votes" }
func (s *Store) voteKey(id, origin string) string {
	return s.contestKey(id) + ":vote:" + origin
}

// Name implements repository.Store.
func (s *Store) Name() string { return backend }

// Close implements repository.Store.
func (s *Store) Close() error { return s.client.Close() }

// CreateContest implements repository.Store.
func (s *Store) CreateContest(ctx context.Context, c model.Contest) (err error) {
	defer func(start time.Time) { repository.Observe(backend, "create_contest", start, err) }(time.Now())

	if err := c.Validate(); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}

	key := s.contestKey(c.ID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", model.ErrContestExists, c.ID)
		}

		ids := make([]interface{}, len(c.Choices))
		labels := make(map[string]interface{}, len(c.Choices))
		tally := make(map[string]interface{}, len(c.Choices))
		for i, ch := range c.Choices {
			ids[i] = ch.ID
			labels[ch.ID] = ch.Label
			tally[ch.ID] = 0
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				"kind":       string(c.Kind),
				"title":      c.Title,
				"created_at": c.CreatedAt.Format(time.RFC3339Nano),
			})
			pipe.RPush(ctx, s.choicesKey(c.ID), ids...)
			pipe.HSet(ctx, s.labelsKey(c.ID), labels)
			pipe.HSet(ctx, s.tallyKey(c.ID), tally)
			pipe.SAdd(ctx, s.contestsKey(), c.ID)
			return nil
		})
		return err
	}, key)
}

// GetContest implements vote.Store.
func (s *Store) GetContest(ctx context.Context, id string) (c model.Contest, err error) {
	defer func(start time.Time) { repository.Observe(backend, "get_contest", start, err) }(time.Now())
	return s.loadContest(ctx, id)
}

// VoteExists implements vote.Store.
func (s *Store) VoteExists(ctx context.Context, contestID, origin string) (exists bool, err error) {
	defer func(start time.Time) { repository.Observe(backend, "vote_exists", start, err) }(time.Now())

	n, err := s.client.Exists(ctx, s.voteKey(contestID, origin)).Result()
	return n > 0, err
}

// IncrementCounterTransactionally implements vote.Store. Optimistic lock
// failures are retried up to the configured bound before giving up.
func (s *Store) IncrementCounterTransactionally(ctx context.Context, rec model.VoteRecord) (c model.Contest, err error) {
	defer func(start time.Time) { repository.Observe(backend, "increment", start, err) }(time.Now())

	payload, err := json.Marshal(recordJSON(rec))
	if err != nil {
		return model.Contest{}, err
	}
	contestKey := s.contestKey(rec.ContestID)
	voteKey := s.voteKey(rec.ContestID, rec.Origin)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, contestKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", model.ErrContestNotFound, rec.ContestID)
		}
		ok, err := tx.HExists(ctx, s.tallyKey(rec.ContestID), rec.Choice).Result()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s/%s", model.ErrUnknownChoice, rec.ContestID, rec.Choice)
		}
		n, err = tx.Exists(ctx, voteKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", model.ErrVoteExists, rec.ContestID)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, s.tallyKey(rec.ContestID), rec.Choice, 1)
			pipe.Set(ctx, voteKey, payload, 0)
			pipe.RPush(ctx, s.votesKey(rec.ContestID), payload)
			pipe.Incr(ctx, s.totalKey())
			return nil
		})
		return err
	}

	for attempt := 0; ; attempt++ {
		err = s.client.Watch(ctx, txf, contestKey, voteKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		if attempt+1 >= s.maxTxRetries {
			s.log.Warn(ctx, "vote transaction kept conflicting", logger.String("contest_id", rec.ContestID), logger.Int("attempts", attempt+1))
			return model.Contest{}, fmt.Errorf("vote transaction retries exhausted: %w", err)
		}
		metrics.RecordStoreTxRetry(backend)
	}
	if err != nil {
		return model.Contest{}, err
	}
	return s.loadContest(ctx, rec.ContestID)
}

// ListContests implements repository.Store.
func (s *Store) ListContests(ctx context.Context) ([]model.Contest, error) {
	ids, err := s.client.SMembers(ctx, s.contestsKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]model.Contest, 0, len(ids))
	for _, id := range ids {
		c, err := s.loadContest(ctx, id)
		if errors.Is(err, model.ErrContestNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ListVotes implements repository.Store.
func (s *Store) ListVotes(ctx context.Context, contestID string) ([]model.VoteRecord, error) {
	n, err := s.client.Exists(ctx, s.contestKey(contestID)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrContestNotFound, contestID)
	}
	raw, err := s.client.LRange(ctx, s.votesKey(contestID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.VoteRecord, 0, len(raw))
	for _, r := range raw {
		var rec recordJSON
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("decode vote record: %w", err)
		}
		out = append(out, model.VoteRecord(rec))
	}
	return out, nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (repository.Counts, error) {
	contests, err := s.client.SCard(ctx, s.contestsKey()).Result()
	if err != nil {
		return repository.Counts{}, err
	}
	votes, err := s.client.Get(ctx, s.totalKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return repository.Counts{}, err
	}
	return repository.Counts{Contests: int(contests), Votes: votes}, nil
}

func (s *Store) loadContest(ctx context.Context, id string) (model.Contest, error) {
	var (
		meta    *redis.MapStringStringCmd
		choices *redis.StringSliceCmd
		labels  *redis.MapStringStringCmd
		tally   *redis.MapStringStringCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, s.contestKey(id))
		choices = pipe.LRange(ctx, s.choicesKey(id), 0, -1)
		labels = pipe.HGetAll(ctx, s.labelsKey(id))
		tally = pipe.HGetAll(ctx, s.tallyKey(id))
		return nil
	})
	if err != nil {
		return model.Contest{}, err
	}

	m := meta.Val()
	if len(m) == 0 {
		return model.Contest{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, id)
	}
	created, err := time.Parse(time.RFC3339Nano, m["created_at"])
	if err != nil {
		return model.Contest{}, fmt.Errorf("corrupt created_at for %s: %w", id, err)
	}
	c := model.Contest{
		ID:        id,
		Kind:      model.Kind(m["kind"]),
		Title:     m["title"],
		CreatedAt: created.UTC(),
	}
	lv, tv := labels.Val(), tally.Val()
	for _, ch := range choices.Val() {
		votes, err := strconv.ParseInt(tv[ch], 10, 64)
		if err != nil {
			return model.Contest{}, fmt.Errorf("corrupt tally for %s/%s: %w", id, ch, err)
		}
		c.Choices = append(c.Choices, model.Choice{ID: ch, Label: lv[ch], Votes: votes})
	}
	return c, nil
}
