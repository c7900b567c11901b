package loadgen

import (
	"errors"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestVerifyResults(t *testing.T) {
	convey.Convey("Given a run of 3 voters with 2 attempts each", t, func() {
		cfg := &Config{Voters: 3, Attempts: 2}
		before := Contest{Total: 4, Choices: []Choice{{ID: "A", Votes: 3}, {ID: "B", Votes: 1}}}
		stats := &Stats{Accepted: 3, Duplicate: 3, Expected: map[string]int64{"A": 2, "B": 1}}

		convey.Convey("When the tally moved exactly by the accepted votes", func() {
			after := Contest{Total: 7, Choices: []Choice{{ID: "A", Votes: 5}, {ID: "B", Votes: 2}}}
			convey.So(verifyResults(cfg, before, after, stats), convey.ShouldBeNil)
		})

		convey.Convey("When a counter went down", func() {
			after := Contest{Total: 7, Choices: []Choice{{ID: "A", Votes: 7}, {ID: "B", Votes: 0}}}
			err := verifyResults(cfg, before, after, stats)
			convey.So(errors.Is(err, ErrMismatch), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "went down")
		})

		convey.Convey("When fewer repeats were refused than sent", func() {
			stats.Duplicate = 2
			after := Contest{Total: 7, Choices: []Choice{{ID: "A", Votes: 5}, {ID: "B", Votes: 2}}}
			err := verifyResults(cfg, before, after, stats)
			convey.So(errors.Is(err, ErrMismatch), convey.ShouldBeTrue)
		})
	})
}

func TestVoterOrigin(t *testing.T) {
	convey.Convey("Given one run prefix", t, func() {
		p := originPrefix()
		a, b := voterOrigin(p, 0), voterOrigin(p, 1)

		convey.Convey("Then voters get distinct unique local addresses", func() {
			convey.So(a, convey.ShouldNotEqual, b)
			convey.So(a, convey.ShouldStartWith, "fd")
		})

		convey.Convey("And another run gets a different prefix", func() {
			convey.So(voterOrigin(originPrefix(), 0), convey.ShouldNotEqual, a)
		})
	})
}
