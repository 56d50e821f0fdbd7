package config_test

import (
	"errors"
	"testing"

	"github.com/okian/crowdfund/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.TableName, convey.ShouldEqual, "milestone_scores")
			convey.So(cfg.ValidateSelections, convey.ShouldBeTrue)
			convey.So(cfg.StrictWallet, convey.ShouldBeTrue)
			convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"*"})
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the postgres driver has no database_url", func() {
			cfg.StoreDriver = config.DriverPostgres
			err := cfg.Validate()

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "database_url")
			})
		})

		convey.Convey("When the supabase driver lacks a key", func() {
			cfg.StoreDriver = config.DriverSupabase
			cfg.SupabaseURL = "https://example.supabase.co"
			err := cfg.Validate()

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.StoreDriver = "redis"

			convey.Convey("Then it should be rejected", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the store timeout is not positive", func() {
			cfg.StoreTimeoutMS = 0

			convey.Convey("Then it should be rejected", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the stale cache has no room", func() {
			cfg.StaleCacheSize = 0

			convey.Convey("Then it should be rejected", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}
