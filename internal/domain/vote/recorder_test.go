package vote_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/vote"
	. "github.com/smartystreets/goconvey/convey"
)

// flakyStore wraps a store and fails selected operations.
type flakyStore struct {
	vote.Store
	existsErr    error
	incrementErr error
	increments   int
}

func (f *flakyStore) VoteExists(ctx context.Context, contestID, origin string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.Store.VoteExists(ctx, contestID, origin)
}

func (f *flakyStore) IncrementCounterTransactionally(ctx context.Context, rec model.VoteRecord) (model.Contest, error) {
	f.increments++
	if f.incrementErr != nil {
		return model.Contest{}, f.incrementErr
	}
	return f.Store.IncrementCounterTransactionally(ctx, rec)
}

// gatedStore holds the first transaction until released, then fails it.
type gatedStore struct {
	vote.Store
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedStore) IncrementCounterTransactionally(ctx context.Context, rec model.VoteRecord) (model.Contest, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
		return model.Contest{}, errors.New("connection reset")
	}
	return g.Store.IncrementCounterTransactionally(ctx, rec)
}

type capturePublisher struct {
	mu      sync.Mutex
	updates []model.ContestUpdate
	refuse  bool
}

func (p *capturePublisher) Enqueue(_ context.Context, u model.ContestUpdate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refuse {
		return false
	}
	p.updates = append(p.updates, u)
	return true
}

func newBattleStore(ctx context.Context) *repository.MemoryStore {
	return repository.NewMemoryStore(ctx, repository.WithContests(model.NewBattle("battle-1", "Final", "Ana", "Ben")))
}

func counters(ctx context.Context, s vote.Store, id string) (int64, int64) {
	c, err := s.GetContest(ctx, id)
	So(err, ShouldBeNil)
	a, _ := c.Choice(model.SideA)
	b, _ := c.Choice(model.SideB)
	return a.Votes, b.Votes
}

func TestRecordVoteScenario(t *testing.T) {
	Convey("Given battle-1 at zero votes", t, func() {
		ctx := context.Background()
		store := newBattleStore(ctx)
		defer func() { _ = store.Close() }()
		at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		r := vote.NewRecorder(store, vote.WithClock(func() time.Time { return at }))

		Convey("When 1.2.3.4 votes for A", func() {
			rec, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})

			Convey("Then A is 1 and one record exists", func() {
				So(err, ShouldBeNil)
				So(rec.ContestID, ShouldEqual, "battle-1")
				So(rec.Choice, ShouldEqual, "A")
				So(rec.Origin, ShouldEqual, "1.2.3.4")
				So(rec.VotedAt, ShouldEqual, at)
				So(rec.ID, ShouldNotBeBlank)

				a, b := counters(ctx, store, "battle-1")
				So(a, ShouldEqual, 1)
				So(b, ShouldEqual, 0)
				recs, _ := store.ListVotes(ctx, "battle-1")
				So(recs, ShouldHaveLength, 1)
			})

			Convey("And the same origin then votes for B", func() {
				_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "B", Origin: "1.2.3.4"})

				Convey("Then it is a duplicate and nothing changes", func() {
					So(errors.Is(err, vote.ErrDuplicateVote), ShouldBeTrue)
					So(vote.Reason(err), ShouldEqual, "duplicate_vote")
					a, b := counters(ctx, store, "battle-1")
					So(a, ShouldEqual, 1)
					So(b, ShouldEqual, 0)
				})

				Convey("And 5.6.7.8 votes for B", func() {
					_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "B", Origin: "5.6.7.8"})

					Convey("Then both sides are at 1", func() {
						So(err, ShouldBeNil)
						a, b := counters(ctx, store, "battle-1")
						So(a, ShouldEqual, 1)
						So(b, ShouldEqual, 1)
					})
				})
			})
		})
	})
}

func TestRecordVoteRepeats(t *testing.T) {
	Convey("Given an origin voting N times in a row", t, func() {
		ctx := context.Background()
		store := newBattleStore(ctx)
		defer func() { _ = store.Close() }()
		r := vote.NewRecorder(store)

		const n = 6
		var errs []error
		for i := 0; i < n; i++ {
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "9.9.9.9"})
			errs = append(errs, err)
		}

		Convey("Then only the first is counted", func() {
			So(errs[0], ShouldBeNil)
			for _, err := range errs[1:] {
				So(errors.Is(err, vote.ErrDuplicateVote), ShouldBeTrue)
			}
			a, _ := counters(ctx, store, "battle-1")
			So(a, ShouldEqual, 1)
			recs, _ := store.ListVotes(ctx, "battle-1")
			So(recs, ShouldHaveLength, 1)
		})
	})

	Convey("Given a deduper that evicted a voter", t, func() {
		ctx := context.Background()
		store := newBattleStore(ctx)
		defer func() { _ = store.Close() }()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1))
		r := vote.NewRecorder(store, vote.WithDeduper(d))

		_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.1.1.1"})
		So(err, ShouldBeNil)
		_, err = r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "2.2.2.2"})
		So(err, ShouldBeNil)

		Convey("Then the store still refuses the repeat", func() {
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "B", Origin: "1.1.1.1"})
			So(errors.Is(err, vote.ErrDuplicateVote), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}

func TestRecordVoteValidation(t *testing.T) {
	Convey("Given a recorder over a store that counts transactions", t, func() {
		ctx := context.Background()
		mem := newBattleStore(ctx)
		defer func() { _ = mem.Close() }()
		store := &flakyStore{Store: mem}
		r := vote.NewRecorder(store)

		cases := []struct {
			name   string
			ballot model.Ballot
		}{
			{"missing origin", model.Ballot{ContestID: "battle-1", Choice: "A"}},
			{"blank origin", model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "   "}},
			{"missing contest", model.Ballot{Choice: "A", Origin: "1.2.3.4"}},
			{"missing choice", model.Ballot{ContestID: "battle-1", Origin: "1.2.3.4"}},
			{"whitespace in contest", model.Ballot{ContestID: "battle 1", Choice: "A", Origin: "1.2.3.4"}},
			{"control char in choice", model.Ballot{ContestID: "battle-1", Choice: "A\n", Origin: "1.2.3.4"}},
			{"oversized contest id", model.Ballot{ContestID: strings.Repeat("x", vote.MaxIDLength+1), Choice: "A", Origin: "1.2.3.4"}},
		}

		for _, tc := range cases {
			Convey("When the ballot has "+tc.name, func() {
				_, err := r.RecordVote(ctx, tc.ballot)

				Convey("Then it is an invalid request and the store is untouched", func() {
					So(errors.Is(err, vote.ErrInvalidRequest), ShouldBeTrue)
					So(vote.Reason(err), ShouldEqual, "invalid_request")
					So(store.increments, ShouldEqual, 0)
					a, b := counters(ctx, mem, "battle-1")
					So(a+b, ShouldEqual, 0)
				})
			})
		}

		Convey("When origin and contest are both missing", func() {
			_, err := r.RecordVote(ctx, model.Ballot{Choice: "A"})

			Convey("Then the origin is reported first", func() {
				So(err.Error(), ShouldContainSubstring, "origin")
			})
		})

		Convey("When the choice is not part of the contest", func() {
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "C", Origin: "1.2.3.4"})

			Convey("Then it is an invalid request and the origin can still vote", func() {
				So(errors.Is(err, vote.ErrInvalidRequest), ShouldBeTrue)
				_, err = r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestRecordVoteNotFound(t *testing.T) {
	Convey("Given a vote on a contest that does not exist", t, func() {
		ctx := context.Background()
		store := newBattleStore(ctx)
		defer func() { _ = store.Close() }()
		d := dedupe.NewInMemoryDeduper()
		r := vote.NewRecorder(store, vote.WithDeduper(d))

		_, err := r.RecordVote(ctx, model.Ballot{ContestID: "ghost", Choice: "A", Origin: "1.2.3.4"})

		Convey("Then it is not found and leaves no trace", func() {
			So(errors.Is(err, vote.ErrNotFound), ShouldBeTrue)
			So(vote.Reason(err), ShouldEqual, "not_found")
			exists, _ := store.VoteExists(ctx, "ghost", "1.2.3.4")
			So(exists, ShouldBeFalse)
			So(d.Size(), ShouldEqual, 0)
			n, _ := store.Count(ctx)
			So(n.Votes, ShouldEqual, 0)
		})
	})
}

func TestRecordVoteStoreFailures(t *testing.T) {
	Convey("Given a store that is down", t, func() {
		ctx := context.Background()
		mem := newBattleStore(ctx)
		defer func() { _ = mem.Close() }()
		d := dedupe.NewInMemoryDeduper()

		Convey("When the existence check fails", func() {
			store := &flakyStore{Store: mem, existsErr: errors.New("connection refused")}
			r := vote.NewRecorder(store, vote.WithDeduper(d))
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})

			Convey("Then it is unavailable, no transaction runs and the claim is released", func() {
				So(errors.Is(err, vote.ErrStoreUnavailable), ShouldBeTrue)
				So(vote.Reason(err), ShouldEqual, "store_unavailable")
				So(store.increments, ShouldEqual, 0)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the transaction fails", func() {
			store := &flakyStore{Store: mem, incrementErr: context.DeadlineExceeded}
			r := vote.NewRecorder(store, vote.WithDeduper(d))
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})

			Convey("Then it is unavailable and the voter may retry", func() {
				So(errors.Is(err, vote.ErrStoreUnavailable), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(store.increments, ShouldEqual, 1)
				So(d.Size(), ShouldEqual, 0)

				store.incrementErr = nil
				_, err = r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})
				So(err, ShouldBeNil)
			})
		})

		Convey("When the transaction loses a race to the same origin", func() {
			store := &flakyStore{Store: mem, incrementErr: fmt.Errorf("tx: %w", model.ErrVoteExists)}
			r := vote.NewRecorder(store)
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})

			Convey("Then it is reported as a duplicate", func() {
				So(errors.Is(err, vote.ErrDuplicateVote), ShouldBeTrue)
			})
		})
	})
}

func TestRecordVoteWhileFirstInFlight(t *testing.T) {
	Convey("Given a vote from 1.2.3.4 stuck in a transaction that will fail", t, func() {
		ctx := context.Background()
		mem := newBattleStore(ctx)
		defer func() { _ = mem.Close() }()
		store := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
		d := dedupe.NewInMemoryDeduper()
		r := vote.NewRecorder(store, vote.WithDeduper(d))

		first := make(chan error, 1)
		go func() {
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})
			first <- err
		}()
		<-store.entered

		Convey("When the same origin votes again before the first finishes", func() {
			_, second := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "B", Origin: "1.2.3.4"})
			close(store.release)
			firstErr := <-first

			Convey("Then the second is decided by the store and counts", func() {
				So(second, ShouldBeNil)
				So(errors.Is(firstErr, vote.ErrStoreUnavailable), ShouldBeTrue)

				a, b := counters(ctx, mem, "battle-1")
				So(a, ShouldEqual, 0)
				So(b, ShouldEqual, 1)
			})

			Convey("And the failed first claim does not erase the stored vote", func() {
				So(d.Claim(ctx, dedupe.Key("battle-1", "1.2.3.4")), ShouldEqual, dedupe.Confirmed)
				_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})
				So(errors.Is(err, vote.ErrDuplicateVote), ShouldBeTrue)
			})
		})
	})
}

func TestRecordVoteOptions(t *testing.T) {
	Convey("Given a recorder with a salt and a publisher", t, func() {
		ctx := context.Background()
		store := newBattleStore(ctx)
		defer func() { _ = store.Close() }()
		pub := &capturePublisher{}
		r := vote.NewRecorder(store,
			vote.WithOriginSalt("pepper"),
			vote.WithPublisher(pub),
			vote.WithIDGenerator(func() string { return "vote-1" }),
			vote.WithTimeout(time.Second),
		)

		rec, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "B", Origin: "1.2.3.4"})

		Convey("Then the stored origin is a hash, not the address", func() {
			So(err, ShouldBeNil)
			So(rec.ID, ShouldEqual, "vote-1")
			So(rec.Origin, ShouldNotEqual, "1.2.3.4")
			So(rec.Origin, ShouldHaveLength, 64)
			exists, _ := store.VoteExists(ctx, "battle-1", rec.Origin)
			So(exists, ShouldBeTrue)
		})

		Convey("Then the same address is still recognised", func() {
			_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})
			So(errors.Is(err, vote.ErrDuplicateVote), ShouldBeTrue)
		})

		Convey("Then one update was published", func() {
			So(pub.updates, ShouldHaveLength, 1)
			So(pub.updates[0].ContestID, ShouldEqual, "battle-1")
			So(pub.updates[0].Choice, ShouldEqual, "B")
		})
	})

	Convey("Given a publisher that refuses updates", t, func() {
		ctx := context.Background()
		store := newBattleStore(ctx)
		defer func() { _ = store.Close() }()
		r := vote.NewRecorder(store, vote.WithPublisher(&capturePublisher{refuse: true}))

		_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: "A", Origin: "1.2.3.4"})

		Convey("Then the vote still counts", func() {
			So(err, ShouldBeNil)
			a, _ := counters(ctx, store, "battle-1")
			So(a, ShouldEqual, 1)
		})
	})
}

func TestRecordVoteConcurrentSameOrigin(t *testing.T) {
	Convey("Given one origin racing itself", t, func() {
		ctx := context.Background()
		store := newBattleStore(ctx)
		defer func() { _ = store.Close() }()
		r := vote.NewRecorder(store)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
			dupes    int
		)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				choice := model.SideA
				if i%2 == 0 {
					choice = model.SideB
				}
				_, err := r.RecordVote(ctx, model.Ballot{ContestID: "battle-1", Choice: choice, Origin: "7.7.7.7"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted++
				case errors.Is(err, vote.ErrDuplicateVote):
					dupes++
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one vote lands", func() {
			So(accepted, ShouldEqual, 1)
			So(dupes, ShouldEqual, 31)
			a, b := counters(ctx, store, "battle-1")
			So(a+b, ShouldEqual, 1)
		})
	})
}
