package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/pkg/logger"
)

// Run executes the complete load test: health check, catalog fetch,
// concurrent writes, then read-back verification of every wallet.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := normalize(config); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now(), Participants: config.Participants}

	logger.Get().Info(ctx, "starting crowdfund load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("participants", config.Participants),
		logger.Int("rounds", config.Rounds),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Bool("verbose", config.Verbose))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, err
	}

	c, err := fetchCatalog(ctx, client)
	if err != nil {
		return stats, err
	}

	plans, err := generatePlans(ctx, c, config)
	if err != nil {
		return stats, fmt.Errorf("plan generation failed: %w", err)
	}

	if err := submitPlans(ctx, client, config, plans, stats); err != nil {
		return stats, fmt.Errorf("write submission failed: %w", err)
	}

	if err := verifyPlans(ctx, client, config, c, plans, stats); err != nil {
		finish(stats)
		return stats, err
	}

	finish(stats)
	displayFinalStats(stats)
	logger.Get().Info(ctx, "load test completed successfully")
	return stats, nil
}

func normalize(config *Config) error {
	if config == nil || config.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if config.Participants <= 0 {
		return fmt.Errorf("%w: participants must be positive", ErrInvalidConfig)
	}
	if config.Rounds < 0 {
		return fmt.Errorf("%w: rounds must not be negative", ErrInvalidConfig)
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	var body struct {
		Status string `json:"status"`
	}
	status, err := client.getJSON(ctx, "/healthz", &body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK || body.Status != "ok" {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// fetchCatalog reads the catalog the service validates against.
func fetchCatalog(ctx context.Context, client *HTTPClient) (*catalog.Catalog, error) {
	var c catalog.Catalog
	status, err := client.getJSON(ctx, "/catalog", &c)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch failed with status: %d", status)
	}
	return &c, nil
}

// submitPlans drives config.Workers wallets at a time. Writes for one wallet
// stay ordered so the last one is the state to verify.
func submitPlans(ctx context.Context, client *HTTPClient, config *Config, plans []plan, stats *Stats) error {
	logger.Get().Info(ctx, "submitting writes",
		logger.Int("participants", len(plans)),
		logger.Int("workers", config.Workers))

	var issued, ok, failed, limited int64

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				logger.Get().Info(progressCtx, "progress",
					logger.Int("issued", int(atomic.LoadInt64(&issued))),
					logger.Int("ok", int(atomic.LoadInt64(&ok))),
					logger.Int("failed", int(atomic.LoadInt64(&failed))),
					logger.Int("rateLimited", int(atomic.LoadInt64(&limited))))
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := range plans {
		p := &plans[i]
		g.Go(func() error {
			for _, w := range p.Writes {
				atomic.AddInt64(&issued, 1)
				retries, err := submitWrite(gctx, client, p.Wallet, w)
				atomic.AddInt64(&limited, int64(retries))
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return err
					}
					atomic.AddInt64(&failed, 1)
					p.Failed = true
					if config.Verbose {
						logger.Get().Warn(gctx, "write failed",
							logger.String("wallet", p.Wallet),
							logger.Int("milestone", w.Milestone),
							logger.Error(err))
					}
					continue
				}
				atomic.AddInt64(&ok, 1)
			}
			return nil
		})
	}
	err := g.Wait()

	stats.WritesIssued = int(atomic.LoadInt64(&issued))
	stats.WritesOK = int(atomic.LoadInt64(&ok))
	stats.WritesFailed = int(atomic.LoadInt64(&failed))
	stats.RateLimited = int(atomic.LoadInt64(&limited))

	logger.Get().Info(ctx, "write submission completed",
		logger.Int("successful", stats.WritesOK),
		logger.Int("failed", stats.WritesFailed),
		logger.Int("rateLimited", stats.RateLimited))
	return err
}

// submitWrite issues w, backing off while the service answers 429. It
// returns how many attempts were rate limited.
func submitWrite(ctx context.Context, client *HTTPClient, wallet string, w write) (int, error) {
	status, limited, err := retryLimited(ctx, func() (int, error) {
		return client.putJSON(ctx, writePath(wallet, w), writeBody(w))
	})
	if err != nil {
		return limited, err
	}
	if status != http.StatusOK {
		return limited, fmt.Errorf("unexpected status: %d", status)
	}
	return limited, nil
}

// retryLimited repeats call with linear backoff while it answers 429 and
// returns the last status with the number of 429s seen.
func retryLimited(ctx context.Context, call func() (int, error)) (int, int, error) {
	limited := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := call()
		if err != nil || status != http.StatusTooManyRequests {
			return status, limited, err
		}
		limited++
		select {
		case <-ctx.Done():
			return status, limited, ctx.Err()
		case <-time.After(retryDelay * time.Duration(attempt)):
		}
	}
	return http.StatusTooManyRequests, limited, errors.New("still rate limited after retries")
}

func finish(stats *Stats) {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if stats.WritesIssued > 0 {
		stats.SuccessRatePc = float64(stats.WritesOK) / float64(stats.WritesIssued) * percentageMultiplier
	}
	if stats.Duration > 0 {
		stats.WritesPerSec = float64(stats.WritesIssued) / stats.Duration.Seconds()
	}
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("participants", stats.Participants),
		logger.Int("writesIssued", stats.WritesIssued),
		logger.Int("writesOK", stats.WritesOK),
		logger.Int("writesFailed", stats.WritesFailed),
		logger.Int("rateLimited", stats.RateLimited),
		logger.Int("verified", stats.Verified),
		logger.Int("mismatches", stats.Mismatches),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", stats.SuccessRatePc),
		logger.Float64("writesPerSecond", stats.WritesPerSec))
}
