package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreIsolation(t *testing.T) {
	Convey("Given a memory store with one row", t, func() {
		ctx := context.Background()
		s := NewMemoryStore(WithMilestones(2))
		row := Row{WalletAddress: "w1", Scores: []*float64{Float(1), Float(2)}, Tier: Float(25)}
		So(s.Insert(ctx, row), ShouldBeNil)

		Convey("When the caller mutates its copies", func() {
			*row.Scores[0] = 99
			got, _ := s.Find(ctx, "w1")
			*got.Tier = 7

			Convey("Then the stored row should be unchanged", func() {
				again, err := s.Find(ctx, "w1")
				So(err, ShouldBeNil)
				So(*again.Scores[0], ShouldEqual, 1)
				So(*again.Tier, ShouldEqual, 25)
				So(s.Len(), ShouldEqual, 1)
			})
		})

		Convey("When the context is already canceled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := s.Find(cctx, "w1")

			Convey("Then the store should report itself unavailable", func() {
				So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
			})
		})

		Convey("When many goroutines insert the same wallet", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if s.Insert(ctx, Row{WalletAddress: "w2"}) == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one insert should succeed", func() {
				So(wins, ShouldEqual, 1)
				So(s.Len(), ShouldEqual, 2)
			})
		})
	})
}
