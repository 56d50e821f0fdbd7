// Package service composes the score store, the funding allocator and the
// selection presenter into the views served by the HTTP API.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/crowdfund/internal/adapters/repository"
	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/internal/domain/funding"
	"github.com/okian/crowdfund/internal/domain/model"
	"github.com/okian/crowdfund/internal/domain/scorestore"
	"github.com/okian/crowdfund/internal/domain/selection"
	"github.com/okian/crowdfund/pkg/logger"
	"github.com/okian/crowdfund/pkg/metrics"
)

// defaultLastKnownSize bounds the stale fallback cache.
const defaultLastKnownSize = 10000

// ParticipantView is everything the UI needs to render one wallet.
type ParticipantView struct {
	Record    model.ParticipantRecord `json:"record"`
	Funding   []funding.Amount        `json:"funding"`
	Total     string                  `json:"total"`
	Selection selection.Selection     `json:"selection"`
	Stale     bool                    `json:"stale,omitempty"`
}

// Service implements the API dependencies for the milestone scoring UI.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	catalog   *catalog.Catalog
	scores    *scorestore.ScoreStore
	allocator *funding.Allocator
	presenter *selection.Presenter

	// Configuration
	validate     bool
	strictWallet bool
	storeTimeout time.Duration
	storeDriver  string

	// State
	started   bool
	startedAt time.Time
	// lastKnown holds the last good record of recently served wallets.
	lastKnown     *lru.Cache[string, model.ParticipantRecord]
	lastKnownSize int

	loads         atomic.Int64
	writes        atomic.Int64
	storeFailures atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithValidation toggles catalog validation of submitted scores and tiers.
func WithValidation(enabled bool) Option {
	return func(s *Service) {
		s.validate = enabled
	}
}

// WithStrictWallet toggles hex address checking.
func WithStrictWallet(enabled bool) Option {
	return func(s *Service) {
		s.strictWallet = enabled
	}
}

// WithStoreTimeout bounds each record store round trip.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithLastKnownSize caps how many wallets keep a stale fallback record.
func WithLastKnownSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lastKnownSize = n
		}
	}
}

// WithStoreDriver names the store adapter in stats.
func WithStoreDriver(name string) Option {
	return func(s *Service) {
		s.storeDriver = name
	}
}

// New constructs a Service over store and c.
func New(store repository.Store, c *catalog.Catalog, opts ...Option) *Service {
	if c == nil {
		c = catalog.Default()
	}
	s := &Service{
		store:         store,
		catalog:       c,
		validate:      true,
		strictWallet:  true,
		storeTimeout:  5 * time.Second,
		storeDriver:   "unknown",
		lastKnownSize: defaultLastKnownSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	// lru.New only fails for a non-positive size, which WithLastKnownSize rejects.
	s.lastKnown, _ = lru.New[string, model.ParticipantRecord](s.lastKnownSize)
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	s.scores = scorestore.New(store, c,
		scorestore.WithValidation(s.validate),
		scorestore.WithStrictWallet(s.strictWallet),
		scorestore.WithTimeout(s.storeTimeout),
		scorestore.WithLogger(s.logger.Named("scorestore")),
	)
	s.allocator = funding.NewAllocator(c.Multiplier)
	s.presenter = selection.NewPresenter(c)
	return s
}

// Start marks the service ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "milestone service started",
		logger.String("store", s.storeDriver),
		logger.Int("milestones", s.catalog.Count()),
		logger.Int("tiers", len(s.catalog.Tiers)),
		logger.Float64("multiplier", s.catalog.Multiplier),
		logger.Bool("validate", s.validate),
	)
	return nil
}

// Stop closes the record store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing record store", logger.Error(err))
		}
	}
	s.started = false
	s.logger.Info(context.Background(), "milestone service stopped")
}

// Catalog returns the loaded catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Participant loads (or lazily creates) the wallet's record and renders it.
func (s *Service) Participant(ctx context.Context, wallet string) (ParticipantView, error) {
	s.loads.Add(1)
	rec, err := s.scores.LoadOrInit(ctx, wallet)
	return s.settle(wallet, rec, err)
}

// SetScore records a milestone score and renders the stored result.
func (s *Service) SetScore(ctx context.Context, wallet string, index int, value float64) (ParticipantView, error) {
	s.writes.Add(1)
	rec, err := s.scores.SetScore(ctx, wallet, index, value)
	return s.settle(wallet, rec, err)
}

// SetTier records the tier and renders the stored result.
func (s *Service) SetTier(ctx context.Context, wallet string, tier float64) (ParticipantView, error) {
	s.writes.Add(1)
	rec, err := s.scores.SetTier(ctx, wallet, tier)
	return s.settle(wallet, rec, err)
}

// Funding returns only the allocation of the wallet's record.
func (s *Service) Funding(ctx context.Context, wallet string) ([]funding.Amount, error) {
	v, err := s.Participant(ctx, wallet)
	if err != nil && !v.Stale {
		return nil, err
	}
	return v.Funding, err
}

// Allocate runs the allocator on ad hoc inputs. A nil multiplier uses the
// catalog's.
func (s *Service) Allocate(scores []float64, tier float64, multiplier *float64) []funding.Amount {
	if multiplier == nil {
		return s.allocator.Allocate(scores, tier)
	}
	return funding.NewAllocator(*multiplier).Allocate(scores, tier)
}

// settle remembers a good record or, on store failure, falls back to the
// last good one. The returned error is always the original one.
func (s *Service) settle(wallet string, rec model.ParticipantRecord, err error) (ParticipantView, error) {
	if err == nil {
		s.lastKnown.Add(rec.WalletAddress, rec.Clone())
		metrics.UpdateTrackedParticipants(s.lastKnown.Len())
		return s.render(rec), nil
	}

	if !errors.Is(err, scorestore.ErrStoreUnavailable) {
		return ParticipantView{}, err
	}
	s.storeFailures.Add(1)
	key, nerr := s.scores.NormalizeWallet(wallet)
	if nerr != nil {
		return ParticipantView{}, err
	}
	prev, ok := s.lastKnown.Get(key)
	if !ok {
		return ParticipantView{}, err
	}
	v := s.render(prev.Clone())
	v.Stale = true
	return v, err
}

func (s *Service) render(rec model.ParticipantRecord) ParticipantView {
	amounts := s.allocator.AllocateRecord(rec)
	return ParticipantView{
		Record:    rec,
		Funding:   amounts,
		Total:     funding.Format(funding.Total(amounts)),
		Selection: s.presenter.Present(rec),
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":             s.started,
		"store":               s.storeDriver,
		"milestones":          s.catalog.Count(),
		"tiers":               len(s.catalog.Tiers),
		"multiplier":          s.catalog.Multiplier,
		"validateSelections":  s.validate,
		"trackedParticipants": s.lastKnown.Len(),
		"loads":               s.loads.Load(),
		"writes":              s.writes.Load(),
		"storeFailures":       s.storeFailures.Load(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	}
	return stats
}
