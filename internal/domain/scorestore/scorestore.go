// Package scorestore reads and writes a participant's milestone scores and
// tier through a keyed record store, creating the record on first use.
package scorestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/crowdfund/internal/adapters/repository"
	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/internal/domain/model"
	"github.com/okian/crowdfund/internal/domain/selection"
	"github.com/okian/crowdfund/pkg/logger"
	"github.com/okian/crowdfund/pkg/metrics"
)

// ScoreStore owns the participant records of one catalog.
//
// Mutations of the same wallet are serialized in issue order within the
// process. Concurrent first reads of a wallet share one lookup, so only one
// insert is attempted.
type ScoreStore struct {
	store   repository.Store
	catalog *catalog.Catalog

	validate     bool
	strictWallet bool
	timeout      time.Duration
	logger       logger.Logger

	loads singleflight.Group
	locks *keyedMutex
}

// New returns a ScoreStore backed by store.
func New(store repository.Store, c *catalog.Catalog, opts ...Option) *ScoreStore {
	s := &ScoreStore{
		store:        store,
		catalog:      c,
		validate:     true,
		strictWallet: true,
		timeout:      5 * time.Second,
		locks:        newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("scorestore")
	}
	return s
}

// Catalog returns the catalog records are shaped by.
func (s *ScoreStore) Catalog() *catalog.Catalog { return s.catalog }

// NormalizeWallet returns the key a wallet is stored under.
func (s *ScoreStore) NormalizeWallet(wallet string) (string, error) {
	w, err := model.NormalizeWallet(wallet, s.strictWallet)
	if err != nil {
		metrics.RecordRejectedSelection("wallet")
	}
	return w, err
}

// LoadOrInit returns the wallet's record, inserting the default record when
// none exists. A stored record without a tier gets the default tier, and
// that backfill is persisted.
func (s *ScoreStore) LoadOrInit(ctx context.Context, wallet string) (model.ParticipantRecord, error) {
	w, err := s.NormalizeWallet(wallet)
	if err != nil {
		return model.ParticipantRecord{}, err
	}

	// The shared lookup outlives any one caller; each caller stops waiting
	// on its own context.
	flight := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(w, func() (any, error) {
		ctx, cancel := context.WithTimeout(flight, s.timeout)
		defer cancel()

		unlock := s.locks.Lock(w)
		defer unlock()
		return s.loadOrInitLocked(ctx, w)
	})

	select {
	case <-ctx.Done():
		return model.ParticipantRecord{}, fmt.Errorf("%w: load: %w", ErrStoreUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return model.ParticipantRecord{}, res.Err
		}
		rec := res.Val.(model.ParticipantRecord)
		if res.Shared {
			rec = rec.Clone()
		}
		return rec, nil
	}
}

// SetScore stores value as the score of milestone index (1-based) and
// returns the record as read back from the store.
func (s *ScoreStore) SetScore(ctx context.Context, wallet string, index int, value float64) (model.ParticipantRecord, error) {
	w, err := s.NormalizeWallet(wallet)
	if err != nil {
		return model.ParticipantRecord{}, err
	}
	if !s.catalog.ValidIndex(index) {
		metrics.RecordRejectedSelection("milestone_index")
		return model.ParticipantRecord{}, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidMilestoneIndex, index, s.catalog.Count())
	}
	if err := s.checkScore(index, value); err != nil {
		metrics.RecordRejectedSelection("score")
		return model.ParticipantRecord{}, err
	}

	rec, err := s.upsertAndReturn(ctx, w, repository.MilestoneColumn(index), value, func(r *model.ParticipantRecord) {
		r.MilestoneScores[index-1] = value
	})
	if err != nil {
		return model.ParticipantRecord{}, err
	}
	metrics.RecordScoreUpdate(strconv.Itoa(index))
	s.logger.Debug(ctx, "milestone score stored",
		logger.String("wallet", w),
		logger.Int("milestone", index),
		logger.Float64("score", value),
	)
	return rec, nil
}

// SetTier stores tier and returns the record as read back from the store.
func (s *ScoreStore) SetTier(ctx context.Context, wallet string, tier float64) (model.ParticipantRecord, error) {
	w, err := s.NormalizeWallet(wallet)
	if err != nil {
		return model.ParticipantRecord{}, err
	}
	if err := s.checkTier(tier); err != nil {
		metrics.RecordRejectedSelection("tier")
		return model.ParticipantRecord{}, err
	}

	rec, err := s.upsertAndReturn(ctx, w, repository.ColumnTier, tier, func(r *model.ParticipantRecord) {
		r.Tier = tier
	})
	if err != nil {
		return model.ParticipantRecord{}, err
	}
	metrics.RecordTierUpdate()
	s.logger.Debug(ctx, "tier stored", logger.String("wallet", w), logger.Float64("tier", tier))
	return rec, nil
}

func (s *ScoreStore) checkScore(index int, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidScoreValue, value)
	}
	if !s.validate {
		return nil
	}
	if _, ok := selection.FindActiveScoreOption(index, value, s.catalog.OptionsFor(index)); !ok {
		return fmt.Errorf("%w: %s is not an active option of milestone %d", ErrInvalidScoreValue, catalog.FormatNumber(value), index)
	}
	return nil
}

func (s *ScoreStore) checkTier(tier float64) error {
	if math.IsNaN(tier) || math.IsInf(tier, 0) || tier < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTier, tier)
	}
	if !s.validate {
		return nil
	}
	if _, ok := selection.FindActiveTierOption(tier, s.catalog.Tiers); !ok {
		return fmt.Errorf("%w: %s is not an active tier", ErrInvalidTier, catalog.FormatNumber(tier))
	}
	return nil
}

func (s *ScoreStore) defaults(wallet string) model.ParticipantRecord {
	return model.NewParticipant(wallet, s.catalog.Count(), s.catalog.DefaultScore, s.catalog.DefaultTier)
}

func (s *ScoreStore) loadOrInitLocked(ctx context.Context, w string) (model.ParticipantRecord, error) {
	rec, err := s.readLocked(ctx, w)
	if !errors.Is(err, repository.ErrNotFound) {
		return rec, err
	}

	rec = s.defaults(w)
	err = s.store.Insert(ctx, toRow(rec))
	switch {
	case err == nil:
		metrics.RecordRecordInitialized()
		s.logger.Info(ctx, "participant record created", logger.String("wallet", w))
		return rec, nil
	case errors.Is(err, repository.ErrConflict):
		// Another process created the row between our read and insert.
		return s.readExisting(ctx, w)
	default:
		return model.ParticipantRecord{}, s.unavailable(ctx, "insert", w, err)
	}
}

// upsertAndReturn writes one column, creating the default record with that
// column overridden when the row is absent, then re-reads the row.
func (s *ScoreStore) upsertAndReturn(ctx context.Context, w, column string, value float64, override func(*model.ParticipantRecord)) (model.ParticipantRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unlock := s.locks.Lock(w)
	defer unlock()

	err := s.store.Update(ctx, w, column, value)
	if errors.Is(err, repository.ErrNotFound) {
		rec := s.defaults(w)
		override(&rec)
		err = s.store.Insert(ctx, toRow(rec))
		switch {
		case err == nil:
			metrics.RecordRecordInitialized()
		case errors.Is(err, repository.ErrConflict):
			err = s.store.Update(ctx, w, column, value)
		}
	}
	if err != nil {
		return model.ParticipantRecord{}, s.unavailable(ctx, "update", w, err)
	}
	return s.readExisting(ctx, w)
}

// readExisting reads a row that must exist.
func (s *ScoreStore) readExisting(ctx context.Context, w string) (model.ParticipantRecord, error) {
	rec, err := s.readLocked(ctx, w)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ParticipantRecord{}, s.unavailable(ctx, "read back", w, err)
	}
	return rec, err
}

// readLocked reads and converts the row, backfilling a NULL tier. It passes
// repository.ErrNotFound through unchanged.
func (s *ScoreStore) readLocked(ctx context.Context, w string) (model.ParticipantRecord, error) {
	row, err := s.store.Find(ctx, w)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ParticipantRecord{}, err
	}
	if err != nil {
		return model.ParticipantRecord{}, s.unavailable(ctx, "find", w, err)
	}

	rec := s.fromRow(w, row)
	if row.Tier == nil {
		if err := s.store.Update(ctx, w, repository.ColumnTier, rec.Tier); err != nil {
			return model.ParticipantRecord{}, s.unavailable(ctx, "tier backfill", w, err)
		}
		metrics.RecordTierBackfill()
		s.logger.Info(ctx, "tier backfilled", logger.String("wallet", w), logger.Float64("tier", rec.Tier))
	}
	return rec, nil
}

func (s *ScoreStore) unavailable(ctx context.Context, op, w string, err error) error {
	s.logger.Warn(ctx, "record store operation failed",
		logger.String("op", op),
		logger.String("wallet", w),
		logger.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// fromRow fills NULL scores with the default score and a NULL tier with the
// default tier.
func (s *ScoreStore) fromRow(w string, row repository.Row) model.ParticipantRecord {
	rec := s.defaults(w)
	for i := range rec.MilestoneScores {
		if i < len(row.Scores) && row.Scores[i] != nil {
			rec.MilestoneScores[i] = *row.Scores[i]
		}
	}
	if row.Tier != nil {
		rec.Tier = *row.Tier
	}
	return rec
}

func toRow(rec model.ParticipantRecord) repository.Row {
	row := repository.Row{
		WalletAddress: rec.WalletAddress,
		Scores:        make([]*float64, len(rec.MilestoneScores)),
		Tier:          repository.Float(rec.Tier),
	}
	for i, v := range rec.MilestoneScores {
		row.Scores[i] = repository.Float(v)
	}
	return row
}
