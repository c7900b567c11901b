package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func vote(contest, choice, origin string) model.VoteRecord {
	return model.VoteRecord{
		ID:        fmt.Sprintf("%s-%s-%s", contest, choice, origin),
		ContestID: contest,
		Choice:    choice,
		Origin:    origin,
		VotedAt:   time.Now().UTC(),
	}
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store with one battle", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, repository.WithContests(model.NewBattle("battle-1", "Final", "Ana", "Ben")))
		defer func() { _ = s.Close() }()

		Convey("Then the battle starts at zero", func() {
			c, err := s.GetContest(ctx, "battle-1")
			So(err, ShouldBeNil)
			So(c.Total(), ShouldEqual, 0)
			So(c.CreatedAt.IsZero(), ShouldBeFalse)
			So(s.Name(), ShouldEqual, "memory")
		})

		Convey("When a vote is committed", func() {
			c, err := s.IncrementCounterTransactionally(ctx, vote("battle-1", "A", "1.2.3.4"))

			Convey("Then the counter, the record and the existence check agree", func() {
				So(err, ShouldBeNil)
				a, _ := c.Choice("A")
				So(a.Votes, ShouldEqual, 1)

				exists, err := s.VoteExists(ctx, "battle-1", "1.2.3.4")
				So(err, ShouldBeNil)
				So(exists, ShouldBeTrue)

				recs, err := s.ListVotes(ctx, "battle-1")
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 1)
				So(recs[0].Origin, ShouldEqual, "1.2.3.4")

				n, _ := s.Count(ctx)
				So(n, ShouldResemble, repository.Counts{Contests: 1, Votes: 1})
			})

			Convey("And the same origin votes again", func() {
				_, err := s.IncrementCounterTransactionally(ctx, vote("battle-1", "B", "1.2.3.4"))

				Convey("Then the transaction is refused without changes", func() {
					So(errors.Is(err, model.ErrVoteExists), ShouldBeTrue)
					c, _ := s.GetContest(ctx, "battle-1")
					So(c.Total(), ShouldEqual, 1)
				})
			})
		})

		Convey("When voting on an unknown contest", func() {
			_, err := s.IncrementCounterTransactionally(ctx, vote("nope", "A", "1.2.3.4"))

			Convey("Then it is not found and nothing is recorded", func() {
				So(errors.Is(err, model.ErrContestNotFound), ShouldBeTrue)
				exists, _ := s.VoteExists(ctx, "nope", "1.2.3.4")
				So(exists, ShouldBeFalse)
			})
		})

		Convey("When voting for a choice the contest does not have", func() {
			_, err := s.IncrementCounterTransactionally(ctx, vote("battle-1", "C", "1.2.3.4"))

			Convey("Then it is refused and the origin may still vote", func() {
				So(errors.Is(err, model.ErrUnknownChoice), ShouldBeTrue)
				exists, _ := s.VoteExists(ctx, "battle-1", "1.2.3.4")
				So(exists, ShouldBeFalse)
			})
		})

		Convey("When creating a contest with a taken id", func() {
			err := s.CreateContest(ctx, model.NewBattle("battle-1", "Again", "X", "Y"))
			So(errors.Is(err, model.ErrContestExists), ShouldBeTrue)
		})

		Convey("When creating an invalid contest", func() {
			err := s.CreateContest(ctx, model.Contest{ID: "x", Kind: model.KindChallenge})
			So(errors.Is(err, model.ErrInvalidContest), ShouldBeTrue)
		})

		Convey("When a created contest carries counters", func() {
			c := model.NewChallenge("dance-1", "Dance", model.Choice{ID: "s1"})
			c.Choices[0].Votes = 10
			So(s.CreateContest(ctx, c), ShouldBeNil)

			Convey("Then they are reset to zero", func() {
				got, _ := s.GetContest(ctx, "dance-1")
				So(got.Total(), ShouldEqual, 0)
				all, _ := s.ListContests(ctx)
				So(all, ShouldHaveLength, 2)
				So(all[0].ID, ShouldEqual, "battle-1")
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := s.IncrementCounterTransactionally(cctx, vote("battle-1", "A", "1.2.3.4"))

			Convey("Then the store refuses and nothing changes", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				c, _ := s.GetContest(ctx, "battle-1")
				So(c.Total(), ShouldEqual, 0)
			})
		})

		Convey("When the store is closed", func() {
			So(s.Close(), ShouldBeNil)
			_, err := s.GetContest(ctx, "battle-1")
			So(errors.Is(err, repository.ErrStoreClosed), ShouldBeTrue)
		})
	})
}

func TestMemoryStoreConcurrentVotes(t *testing.T) {
	Convey("Given many origins voting at once, each several times", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, repository.WithContests(model.NewBattle("battle-1", "Final", "Ana", "Ben")))
		defer func() { _ = s.Close() }()

		const origins, repeats = 40, 5
		var wg sync.WaitGroup
		for i := 0; i < origins; i++ {
			for j := 0; j < repeats; j++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					choice := model.SideA
					if i%2 == 1 {
						choice = model.SideB
					}
					_, _ = s.IncrementCounterTransactionally(ctx, vote("battle-1", choice, fmt.Sprintf("10.0.0.%d", i)))
				}(i)
			}
		}
		wg.Wait()

		Convey("Then each origin counted exactly once", func() {
			c, _ := s.GetContest(ctx, "battle-1")
			So(c.Total(), ShouldEqual, origins)
			a, _ := c.Choice(model.SideA)
			So(a.Votes, ShouldEqual, origins/2)
			recs, _ := s.ListVotes(ctx, "battle-1")
			So(recs, ShouldHaveLength, origins)
		})
	})
}
