package repository

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const driverMemory = "memory"

// MemoryStore keeps rows in a map. It is the default store for local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	rows       map[string]Row
	milestones int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := newSettings(opts)
	return &MemoryStore{
		rows:       make(map[string]Row),
		milestones: s.milestones,
	}
}

// Find implements Store.
func (s *MemoryStore) Find(ctx context.Context, wallet string) (row Row, err error) {
	defer func(start time.Time) { observe(driverMemory, "find", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return Row{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[wallet]
	if !ok {
		return Row{}, ErrNotFound
	}
	return r.clone(), nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, row Row) (err error) {
	defer func(start time.Time) { observe(driverMemory, "insert", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[row.WalletAddress]; ok {
		return ErrConflict
	}
	r := row.clone()
	for len(r.Scores) < s.milestones {
		r.Scores = append(r.Scores, nil)
	}
	s.rows[row.WalletAddress] = r
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, wallet, column string, value float64) (err error) {
	defer func(start time.Time) { observe(driverMemory, "update", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	idx, err := ParseColumn(column, s.milestones)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[wallet]
	if !ok {
		return ErrNotFound
	}
	if idx == 0 {
		r.Tier = Float(value)
	} else {
		r.Scores[idx-1] = Float(value)
	}
	s.rows[wallet] = r
	return nil
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
