package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/arena/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("Then it starts empty", func() {
			So(d, ShouldNotBeNil)
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When a key is claimed", func() {
			state := d.Claim(ctx, dedupe.Key("battle-1", "1.2.3.4"))

			Convey("Then it is new and counted", func() {
				So(state, ShouldEqual, dedupe.Claimed)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And claiming it again reports it in flight", func() {
				So(d.Claim(ctx, dedupe.Key("battle-1", "1.2.3.4")), ShouldEqual, dedupe.InFlight)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And once confirmed it reports it as stored", func() {
				d.Confirm(ctx, dedupe.Key("battle-1", "1.2.3.4"))
				So(d.Claim(ctx, dedupe.Key("battle-1", "1.2.3.4")), ShouldEqual, dedupe.Confirmed)
			})

			Convey("And the same origin on another contest is new", func() {
				So(d.Claim(ctx, dedupe.Key("battle-2", "1.2.3.4")), ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When a pending key is unrecorded", func() {
			d.Claim(ctx, "k1")
			d.Unrecord(ctx, "k1")

			Convey("Then it can be claimed again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.Claim(ctx, "k1"), ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When a confirmed key is unrecorded", func() {
			d.Claim(ctx, "k1")
			d.Confirm(ctx, "k1")
			d.Unrecord(ctx, "k1")

			Convey("Then it is kept", func() {
				So(d.Size(), ShouldEqual, 1)
				So(d.Claim(ctx, "k1"), ShouldEqual, dedupe.Confirmed)
			})
		})

		Convey("When an unknown key is confirmed", func() {
			d.Confirm(ctx, "k9")

			Convey("Then it is recorded as stored", func() {
				So(d.Size(), ShouldEqual, 1)
				So(d.Claim(ctx, "k9"), ShouldEqual, dedupe.Confirmed)
			})
		})

		Convey("When an unknown key is unrecorded", func() {
			d.Claim(ctx, "k1")
			d.Unrecord(ctx, "missing")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestDeduperKey(t *testing.T) {
	Convey("Keys do not collide across the separator", t, func() {
		So(dedupe.Key("a", "b:c"), ShouldNotEqual, dedupe.Key("a:b", "c"))
	})
}

func TestBoundedEviction(t *testing.T) {
	ctx := context.Background()

	Convey("Given a deduper bounded to three keys", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, k := range []string{"k1", "k2", "k3"} {
			d.Claim(ctx, k)
		}

		Convey("When a fourth key arrives", func() {
			d.Claim(ctx, "k4")

			Convey("Then the oldest key is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Claim(ctx, "k4"), ShouldNotEqual, dedupe.Claimed)
				So(d.Claim(ctx, "k3"), ShouldNotEqual, dedupe.Claimed)
				So(d.Claim(ctx, "k1"), ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When a middle key is unrecorded before more arrive", func() {
			d.Unrecord(ctx, "k2")
			d.Claim(ctx, "k4")
			d.Claim(ctx, "k5")

			Convey("Then eviction still removes the oldest remaining key", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Claim(ctx, "k5"), ShouldNotEqual, dedupe.Claimed)
				So(d.Claim(ctx, "k4"), ShouldNotEqual, dedupe.Claimed)
				So(d.Claim(ctx, "k3"), ShouldNotEqual, dedupe.Claimed)
			})
		})

		Convey("When the newest key is unrecorded", func() {
			d.Unrecord(ctx, "k3")
			d.Claim(ctx, "k6")

			Convey("Then the list stays consistent", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Claim(ctx, "k6"), ShouldNotEqual, dedupe.Claimed)
				So(d.Claim(ctx, "k1"), ShouldNotEqual, dedupe.Claimed)
			})
		})

		Convey("When an evicted key is confirmed", func() {
			d.Claim(ctx, "k4")
			d.Confirm(ctx, "k1")

			Convey("Then it comes back as the newest entry", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Claim(ctx, "k1"), ShouldEqual, dedupe.Confirmed)
				So(d.Claim(ctx, "k2"), ShouldEqual, dedupe.Claimed)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.Claim(ctx, fmt.Sprintf("k%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 1000)
			So(d.Claim(ctx, "k0"), ShouldEqual, dedupe.InFlight)
		})
	})
}

func TestDeduperConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given many goroutines claiming the same key", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var winners atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if d.Claim(ctx, dedupe.Key("battle-1", "9.9.9.9")) == dedupe.Claimed {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one claims it", func() {
			So(winners.Load(), ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
