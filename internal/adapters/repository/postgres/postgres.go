// Package postgres stores contests and vote records in PostgreSQL.
//
// The one-vote-per-origin rule is enforced by a unique constraint on
// vote_records (contest_id, voter_origin); the vote transaction increments
// the counter and inserts the record with ON CONFLICT DO NOTHING, rolling
// back when the insert hit the constraint.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
)

const backend = "postgres"

const uniqueViolation = "23505"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ repository.Store = (*Store)(nil)

// Store is a repository.Store backed by PostgreSQL.
type Store struct {
	db           *sqlx.DB
	log          logger.Logger
	now          func() time.Time
	maxOpenConns int
	migrate      bool
}

type contestRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
}

type choiceRow struct {
	ContestID string `db:"contest_id"`
	Choice    string `db:"choice"`
	Label     string `db:"label"`
	Votes     int64  `db:"votes"`
}

type voteRow struct {
	ID        string    `db:"id"`
	ContestID string    `db:"contest_id"`
	Choice    string    `db:"choice"`
	Origin    string    `db:"voter_origin"`
	VotedAt   time.Time `db:"voted_at"`
}

// Open connects to dsn, sizes the pool and, unless disabled, migrates the
// schema to the latest version.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewWithDB(db, opts...)
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if s.migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle. Migrations are not run.
func NewWithDB(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		log:          logger.Get().Named("postgres"),
		now:          time.Now,
		maxOpenConns: 20,
		migrate:      true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, backend, driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	s.log.Info(ctx, "database migrated", logger.Int("version", int(version)), logger.Bool("dirty", dirty))
	return nil
}

// Name implements repository.Store.
func (s *Store) Name() string { return backend }

// Close implements repository.Store.
func (s *Store) Close() error { return s.db.Close() }

// CreateContest implements repository.Store.
func (s *Store) CreateContest(ctx context.Context, c model.Contest) (err error) {
	defer func(start time.Time) { repository.Observe(backend, "create_contest", start, err) }(time.Now())

	if err := c.Validate(); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO contests (id, kind, title, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, string(c.Kind), c.Title, c.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", model.ErrContestExists, c.ID)
		}
		return err
	}
	for i, ch := range c.Choices {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO contest_choices (contest_id, choice, label, votes, position) VALUES ($1, $2, $3, 0, $4)`,
			c.ID, ch.ID, ch.Label, i,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetContest implements vote.Store.
func (s *Store) GetContest(ctx context.Context, id string) (c model.Contest, err error) {
	defer func(start time.Time) { repository.Observe(backend, "get_contest", start, err) }(time.Now())
	return s.loadContest(ctx, s.db, id)
}

// VoteExists implements vote.Store.
func (s *Store) VoteExists(ctx context.Context, contestID, origin string) (exists bool, err error) {
	defer func(start time.Time) { repository.Observe(backend, "vote_exists", start, err) }(time.Now())

	err = s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM vote_records WHERE contest_id = $1 AND voter_origin = $2)`,
		contestID, origin,
	)
	return exists, err
}

// IncrementCounterTransactionally implements vote.Store.
func (s *Store) IncrementCounterTransactionally(ctx context.Context, rec model.VoteRecord) (c model.Contest, err error) {
	defer func(start time.Time) { repository.Observe(backend, "increment", start, err) }(time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Contest{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM contests WHERE id = $1)`, rec.ContestID,
	); err != nil {
		return model.Contest{}, err
	}
	if !exists {
		return model.Contest{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, rec.ContestID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE contest_choices SET votes = votes + 1 WHERE contest_id = $1 AND choice = $2`,
		rec.ContestID, rec.Choice,
	)
	if err != nil {
		return model.Contest{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Contest{}, err
	} else if n == 0 {
		return model.Contest{}, fmt.Errorf("%w: %s/%s", model.ErrUnknownChoice, rec.ContestID, rec.Choice)
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO vote_records (id, contest_id, choice, voter_origin, voted_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (contest_id, voter_origin) DO NOTHING`,
		rec.ID, rec.ContestID, rec.Choice, rec.Origin, rec.VotedAt,
	)
	if err != nil {
		return model.Contest{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Contest{}, err
	} else if n == 0 {
		return model.Contest{}, fmt.Errorf("%w: %s", model.ErrVoteExists, rec.ContestID)
	}

	c, err = s.loadContest(ctx, tx, rec.ContestID)
	if err != nil {
		return model.Contest{}, err
	}
	if err = tx.Commit(); err != nil {
		return model.Contest{}, err
	}
	committed = true
	return c, nil
}

// ListContests implements repository.Store.
func (s *Store) ListContests(ctx context.Context) ([]model.Contest, error) {
	var rows []contestRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, kind, title, created_at FROM contests ORDER BY id`,
	); err != nil {
		return nil, err
	}
	var choices []choiceRow
	if err := s.db.SelectContext(ctx, &choices,
		`SELECT contest_id, choice, label, votes FROM contest_choices ORDER BY contest_id, position`,
	); err != nil {
		return nil, err
	}

	byContest := make(map[string][]model.Choice, len(rows))
	for _, ch := range choices {
		byContest[ch.ContestID] = append(byContest[ch.ContestID], model.Choice{ID: ch.Choice, Label: ch.Label, Votes: ch.Votes})
	}
	out := make([]model.Contest, len(rows))
	for i, r := range rows {
		out[i] = r.toModel(byContest[r.ID])
	}
	return out, nil
}

// ListVotes implements repository.Store.
func (s *Store) ListVotes(ctx context.Context, contestID string) ([]model.VoteRecord, error) {
	if _, err := s.loadContest(ctx, s.db, contestID); err != nil {
		return nil, err
	}
	var rows []voteRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, contest_id, choice, voter_origin, voted_at FROM vote_records WHERE contest_id = $1 ORDER BY voted_at, id`,
		contestID,
	); err != nil {
		return nil, err
	}
	out := make([]model.VoteRecord, len(rows))
	for i, r := range rows {
		out[i] = model.VoteRecord{ID: r.ID, ContestID: r.ContestID, Choice: r.Choice, Origin: r.Origin, VotedAt: r.VotedAt.UTC()}
	}
	return out, nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (repository.Counts, error) {
	var row struct {
		Contests int   `db:"contests"`
		Votes    int64 `db:"votes"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT (SELECT COUNT(*) FROM contests) AS contests, (SELECT COUNT(*) FROM vote_records) AS votes`,
	)
	return repository.Counts{Contests: row.Contests, Votes: row.Votes}, err
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func (s *Store) loadContest(ctx context.Context, q queryer, id string) (model.Contest, error) {
	var row contestRow
	if err := q.GetContext(ctx, &row,
		`SELECT id, kind, title, created_at FROM contests WHERE id = $1`, id,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Contest{}, fmt.Errorf("%w: %s", model.ErrContestNotFound, id)
		}
		return model.Contest{}, err
	}
	var choices []choiceRow
	if err := q.SelectContext(ctx, &choices,
		`SELECT contest_id, choice, label, votes FROM contest_choices WHERE contest_id = $1 ORDER BY position`, id,
	); err != nil {
		return model.Contest{}, err
	}
	out := make([]model.Choice, len(choices))
	for i, ch := range choices {
		out[i] = model.Choice{ID: ch.Choice, Label: ch.Label, Votes: ch.Votes}
	}
	return row.toModel(out), nil
}

func (r contestRow) toModel(choices []model.Choice) model.Contest {
	return model.Contest{
		ID:        r.ID,
		Kind:      model.Kind(r.Kind),
		Title:     r.Title,
		Choices:   choices,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
