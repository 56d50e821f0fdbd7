package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/crowdfund/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParticipantRecord(t *testing.T) {
	convey.Convey("Given a default participant record", t, func() {
		r := model.NewParticipant("0xabc", 8, 0, 100)

		convey.Convey("Then every slot should hold the default score", func() {
			convey.So(len(r.MilestoneScores), convey.ShouldEqual, 8)
			for _, s := range r.MilestoneScores {
				convey.So(s, convey.ShouldEqual, 0)
			}
			convey.So(r.Tier, convey.ShouldEqual, 100)
		})

		convey.Convey("When reading scores by milestone index", func() {
			r.MilestoneScores[2] = 50
			s, ok := r.Score(3)

			convey.Convey("Then indexes should be 1-based", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(s, convey.ShouldEqual, 50)
				_, ok = r.Score(0)
				convey.So(ok, convey.ShouldBeFalse)
				_, ok = r.Score(9)
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When cloning", func() {
			c := r.Clone()
			c.MilestoneScores[0] = 10

			convey.Convey("Then the original should be untouched", func() {
				convey.So(r.MilestoneScores[0], convey.ShouldEqual, 0)
				convey.So(c.WalletAddress, convey.ShouldEqual, r.WalletAddress)
			})
		})
	})
}

func TestNormalizeWallet(t *testing.T) {
	convey.Convey("Given wallet addresses from the client", t, func() {
		const mixed = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

		convey.Convey("When strict checking is on", func() {
			w, err := model.NormalizeWallet("  "+mixed+" ", true)
			convey.So(err, convey.ShouldBeNil)
			convey.So(w, convey.ShouldEqual, "0xabcdef0123456789abcdef0123456789abcdef01")

			noPrefix, err := model.NormalizeWallet(mixed[2:], true)
			convey.So(err, convey.ShouldBeNil)
			convey.So(noPrefix, convey.ShouldEqual, w)

			_, err = model.NormalizeWallet("0x1234", true)
			convey.So(errors.Is(err, model.ErrInvalidWallet), convey.ShouldBeTrue)
		})

		convey.Convey("When strict checking is off", func() {
			w, err := model.NormalizeWallet("Player-One", false)
			convey.So(err, convey.ShouldBeNil)
			convey.So(w, convey.ShouldEqual, "player-one")
		})

		convey.Convey("When the address is blank", func() {
			_, err := model.NormalizeWallet("   ", false)
			convey.So(errors.Is(err, model.ErrInvalidWallet), convey.ShouldBeTrue)
		})
	})
}
