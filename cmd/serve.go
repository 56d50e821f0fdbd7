package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/crowdfund/internal/adapters/http/api"
	"github.com/okian/crowdfund/internal/adapters/repository"
	app "github.com/okian/crowdfund/internal/app"
	"github.com/okian/crowdfund/internal/config"
	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/pkg/logger"
	"github.com/okian/crowdfund/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default command)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Disable default Go metrics collection to avoid duplicate metrics.
	// We collect our own system metrics instead.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return err
	}
	if err := initLogging(cfg); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	return serve(ctx, cfg)
}

// initLogging builds the global logger from cfg.
func initLogging(cfg *config.Config) error {
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups))
	}
	if err := logger.Init(opts...); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// serve runs the API until ctx is canceled or the listener fails.
func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("main")

	c, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, c.Count())
	if err != nil {
		return err
	}

	svc := app.New(store, c,
		app.WithLogger(logger.Named("service")),
		app.WithValidation(cfg.ValidateSelections),
		app.WithStrictWallet(cfg.StrictWallet),
		app.WithStoreTimeout(time.Duration(cfg.StoreTimeoutMS)*time.Millisecond),
		app.WithStoreDriver(cfg.StoreDriver),
		app.WithLastKnownSize(cfg.StaleCacheSize),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	apiServer := api.NewServer(svc, svc,
		api.WithAllowedOrigins(cfg.AllowedOrigins),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithLogger(logger.Named("api")),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(ctx),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
			return err
		}
		return nil
	})

	err = g.Wait()
	log.Info(context.Background(), "server stopped")
	return err
}

// loadCatalog reads path, or returns the built-in catalog when path is empty.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// openStore builds the record store adapter selected by cfg.StoreDriver.
func openStore(ctx context.Context, cfg *config.Config, milestones int) (repository.Store, error) {
	timeout := time.Duration(cfg.StoreTimeoutMS) * time.Millisecond
	opts := []repository.Option{
		repository.WithTable(cfg.TableName),
		repository.WithMilestones(milestones),
		repository.WithRequestTimeout(timeout),
	}

	var (
		store repository.Store
		err   error
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = repository.NewMemoryStore(opts...)
	case config.DriverPostgres:
		store, err = openSQL(ctx, repository.DialectPostgres, cfg.DatabaseURL, opts)
	case config.DriverSQLite:
		store, err = openSQL(ctx, repository.DialectSQLite, cfg.DatabaseURL, opts)
	case config.DriverSupabase:
		var rs *repository.RESTStore
		if rs, err = repository.NewRESTStore(cfg.SupabaseURL, cfg.SupabaseKey, opts...); err == nil {
			store = rs
		}
	default:
		err = fmt.Errorf("%w: unknown store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return store, nil
}

func openSQL(ctx context.Context, dialect, dsn string, opts []repository.Option) (repository.Store, error) {
	s, err := repository.OpenSQL(ctx, dialect, dsn, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// startSystemMetricsUpdater updates system metrics until ctx is canceled.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		// average pause since start
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
