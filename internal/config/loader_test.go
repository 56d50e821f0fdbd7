package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/crowdfund/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

// writeConfig writes a YAML file under t's temp dir and points
// CROWDFUND_CONFIG at it.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crowdfund.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CROWDFUND_CONFIG", path)
	return path
}

func TestLoad_Defaults(t *testing.T) {
	ctx := context.Background()

	convey.Convey("With nothing but defaults", t, func() {
		t.Setenv("CROWDFUND_CONFIG", "")
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg, convey.ShouldResemble, config.New())
	})
}

func TestLoad_Env(t *testing.T) {
	ctx := context.Background()

	convey.Convey("With CROWDFUND_* variables", t, func() {
		t.Setenv("CROWDFUND_ADDR", ":8080")
		t.Setenv("CROWDFUND_STORE_DRIVER", config.DriverSQLite)
		t.Setenv("CROWDFUND_DATABASE_URL", "/tmp/scores.db")
		t.Setenv("CROWDFUND_VALIDATE_SELECTIONS", "false")
		t.Setenv("CROWDFUND_STRICT_WALLET", "false")
		t.Setenv("CROWDFUND_RATE_LIMIT_RPS", "2.5")
		t.Setenv("CROWDFUND_LOG_FORMAT", "json")
		t.Setenv("CROWDFUND_ALLOWED_ORIGINS", "https://app.example.org, ,http://localhost:3000")

		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
		convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
		convey.So(cfg.DatabaseURL, convey.ShouldEqual, "/tmp/scores.db")
		convey.So(cfg.ValidateSelections, convey.ShouldBeFalse)
		convey.So(cfg.StrictWallet, convey.ShouldBeFalse)
		convey.So(cfg.RateLimitRPS, convey.ShouldEqual, 2.5)
		convey.So(cfg.LogFormat, convey.ShouldEqual, "json")

		convey.Convey("allowed_origins is split on commas and blanks dropped", func() {
			convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://app.example.org", "http://localhost:3000"})
		})
	})
}

func TestLoad_File(t *testing.T) {
	ctx := context.Background()

	convey.Convey("With a YAML file for a Supabase deployment", t, func() {
		writeConfig(t, `
addr: ":9090"
store_driver: supabase
supabase_url: "https://demo.supabase.co"
supabase_key: "anon-key"
table_name: helpers_fund_scores
catalog_path: ./configs/MilestoneMenuButtons.json
log_file: /var/log/crowdfund/api.log
log_max_backups: 7
allowed_origins:
  - https://fund.example.org
`)
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSupabase)
		convey.So(cfg.SupabaseKey, convey.ShouldEqual, "anon-key")
		convey.So(cfg.TableName, convey.ShouldEqual, "helpers_fund_scores")
		convey.So(cfg.CatalogPath, convey.ShouldEqual, "./configs/MilestoneMenuButtons.json")
		convey.So(cfg.LogFile, convey.ShouldEqual, "/var/log/crowdfund/api.log")
		convey.So(cfg.LogMaxBackups, convey.ShouldEqual, 7)
		convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://fund.example.org"})

		convey.Convey("unset keys keep their defaults", func() {
			convey.So(cfg.StoreTimeoutMS, convey.ShouldEqual, 5000)
			convey.So(cfg.LogMaxSizeMB, convey.ShouldEqual, 100)
		})
	})
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	ctx := context.Background()

	convey.Convey("With both a file and env", t, func() {
		writeConfig(t, "addr: \":9090\"\ntable_name: from_file\n")
		t.Setenv("CROWDFUND_ADDR", ":8080")

		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
		convey.So(cfg.TableName, convey.ShouldEqual, "from_file")
	})
}

func TestLoad_MalformedFile(t *testing.T) {
	ctx := context.Background()

	convey.Convey("A malformed file is a load error", t, func() {
		writeConfig(t, `invalid: yaml: content: [`)
		cfg, err := config.Load(ctx)
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		convey.So(cfg, convey.ShouldBeNil)
	})
}

func TestLoad_MissingFile(t *testing.T) {
	ctx := context.Background()

	convey.Convey("A missing file is a load error", t, func() {
		t.Setenv("CROWDFUND_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
		cfg, err := config.Load(ctx)
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		convey.So(cfg, convey.ShouldBeNil)
	})
}

func TestLoad_BadNumber(t *testing.T) {
	ctx := context.Background()

	convey.Convey("A non-numeric burst fails to decode", t, func() {
		t.Setenv("CROWDFUND_RATE_LIMIT_BURST", "not_a_number")
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(cfg, convey.ShouldBeNil)
	})
}

func TestLoad_Validates(t *testing.T) {
	ctx := context.Background()

	convey.Convey("The loaded result is validated", t, func() {
		t.Setenv("CROWDFUND_ADDR", "")
		cfg, err := config.Load(ctx)
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
		convey.So(cfg, convey.ShouldBeNil)

		t.Setenv("CROWDFUND_ADDR", ":9080")
		t.Setenv("CROWDFUND_STORE_DRIVER", config.DriverPostgres)
		_, err = config.Load(ctx)
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})
}
