// Package repository defines the participant record store boundary and its
// adapters: in-memory, SQL (gorm) and Supabase PostgREST.
package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/crowdfund/internal/domain/funding"
	"github.com/okian/crowdfund/pkg/metrics"
)

// Column names of the storage row contract.
const (
	ColumnWallet          = "wallet_address"
	ColumnTier            = "tier"
	milestoneColumnPrefix = "milestone"
)

// Row is one stored participant. A nil entry is a NULL column.
type Row struct {
	WalletAddress string
	Scores        []*float64 // index 0 is milestone1
	Tier          *float64
}

// Store provides keyed access to participant rows.
type Store interface {
	// Find returns the row for wallet or ErrNotFound.
	Find(ctx context.Context, wallet string) (Row, error)

	// Insert creates row. It returns ErrConflict when the wallet exists.
	Insert(ctx context.Context, row Row) error

	// Update sets a single column. It returns ErrNotFound when no row matched.
	Update(ctx context.Context, wallet, column string, value float64) error

	// Close releases the underlying connection.
	Close() error
}

// MilestoneColumn returns the column holding the score of milestone i.
func MilestoneColumn(i int) string {
	return milestoneColumnPrefix + strconv.Itoa(i)
}

var milestoneColumnRe = regexp.MustCompile(`^milestone([1-9][0-9]*)$`)

// ParseColumn resolves column to a 1-based milestone index, or 0 for the
// tier column.
func ParseColumn(column string, milestones int) (int, error) {
	if column == ColumnTier {
		return 0, nil
	}
	m := milestoneColumnRe.FindStringSubmatch(column)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	i, _ := strconv.Atoi(m[1])
	if milestones > 0 && i > milestones {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	return i, nil
}

// Float returns a pointer to f, for building rows.
func Float(f float64) *float64 { return &f }

// rowFromMap converts a loosely typed storage row. Non-numeric values read
// as 0, absent and NULL values as nil.
func rowFromMap(m map[string]any, milestones int) Row {
	r := Row{Scores: make([]*float64, milestones)}
	if w, ok := m[ColumnWallet]; ok && w != nil {
		r.WalletAddress = strings.ToLower(fmt.Sprint(w))
	}
	for i := 1; i <= milestones; i++ {
		if v, ok := m[MilestoneColumn(i)]; ok && v != nil {
			r.Scores[i-1] = Float(funding.Coerce(v))
		}
	}
	if v, ok := m[ColumnTier]; ok && v != nil {
		r.Tier = Float(funding.Coerce(v))
	}
	return r
}

// toMap is the inverse of rowFromMap. NULL columns are omitted.
func (r Row) toMap() map[string]any {
	m := map[string]any{ColumnWallet: r.WalletAddress}
	for i, s := range r.Scores {
		if s != nil {
			m[MilestoneColumn(i+1)] = *s
		}
	}
	if r.Tier != nil {
		m[ColumnTier] = *r.Tier
	}
	return m
}

func (r Row) clone() Row {
	out := Row{WalletAddress: r.WalletAddress, Scores: make([]*float64, len(r.Scores))}
	for i, s := range r.Scores {
		if s != nil {
			out.Scores[i] = Float(*s)
		}
	}
	if r.Tier != nil {
		out.Tier = Float(*r.Tier)
	}
	return out
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultUnavailable
	}
}

func observe(driver, op string, start time.Time, err error) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordStoreOperation(driver, op, resultOf(err), ms)
}
