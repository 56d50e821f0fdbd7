package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behavior every Store adapter shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	const wallet = "0x00000000000000000000000000000000000000aa"

	_, err := s.Find(ctx, wallet)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Update(ctx, wallet, ColumnTier, 50), ErrNotFound)

	row := Row{WalletAddress: wallet, Scores: make([]*float64, 8), Tier: Float(100)}
	for i := range row.Scores {
		row.Scores[i] = Float(0)
	}
	row.Scores[2] = Float(25)
	require.NoError(t, s.Insert(ctx, row))
	require.ErrorIs(t, s.Insert(ctx, row), ErrConflict)

	got, err := s.Find(ctx, wallet)
	require.NoError(t, err)
	require.Equal(t, wallet, got.WalletAddress)
	require.Len(t, got.Scores, 8)
	require.NotNil(t, got.Scores[2])
	require.Equal(t, 25.0, *got.Scores[2])
	require.NotNil(t, got.Tier)
	require.Equal(t, 100.0, *got.Tier)

	require.NoError(t, s.Update(ctx, wallet, MilestoneColumn(8), 50))
	require.NoError(t, s.Update(ctx, wallet, ColumnTier, 250))
	got, err = s.Find(ctx, wallet)
	require.NoError(t, err)
	require.Equal(t, 50.0, *got.Scores[7])
	require.Equal(t, 250.0, *got.Tier)
	require.Equal(t, 25.0, *got.Scores[2])

	err = s.Update(ctx, wallet, "milestone9", 1)
	require.ErrorIs(t, err, ErrUnknownColumn)
	err = s.Update(ctx, wallet, "wallet_address", 1)
	require.ErrorIs(t, err, ErrUnknownColumn)

	// NULL tier survives the round trip as nil.
	const bare = "0x00000000000000000000000000000000000000bb"
	require.NoError(t, s.Insert(ctx, Row{WalletAddress: bare, Scores: []*float64{Float(10)}}))
	got, err = s.Find(ctx, bare)
	require.NoError(t, err)
	require.Nil(t, got.Tier)
	require.Equal(t, 10.0, *got.Scores[0])
	require.Nil(t, got.Scores[1])
}

func TestParseColumn(t *testing.T) {
	i, err := ParseColumn("tier", 8)
	require.NoError(t, err)
	require.Equal(t, 0, i)

	i, err = ParseColumn("milestone3", 8)
	require.NoError(t, err)
	require.Equal(t, 3, i)

	for _, bad := range []string{"milestone0", "milestone9", "milestone", "milestone01", "tier; drop", ""} {
		_, err := ParseColumn(bad, 8)
		require.True(t, errors.Is(err, ErrUnknownColumn), bad)
	}
}

func TestRowFromMap(t *testing.T) {
	r := rowFromMap(map[string]any{
		"wallet_address": "0xABC",
		"milestone1":     "50",
		"milestone2":     nil,
		"milestone3":     int64(10),
		"tier":           "oops",
	}, 4)
	require.Equal(t, "0xabc", r.WalletAddress)
	require.Equal(t, 50.0, *r.Scores[0])
	require.Nil(t, r.Scores[1])
	require.Equal(t, 10.0, *r.Scores[2])
	require.Nil(t, r.Scores[3])
	require.Equal(t, 0.0, *r.Tier)
}
