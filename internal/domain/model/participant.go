// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParticipantRecord is the persisted per-wallet row: one score per
// milestone slot plus the selected funding tier.
type ParticipantRecord struct {
	WalletAddress   string    `json:"wallet_address"`
	MilestoneScores []float64 `json:"milestone_scores"` // index 0 is milestone 1
	Tier            float64   `json:"tier"`
}

// NewParticipant builds the default record created on first interaction.
func NewParticipant(wallet string, milestones int, defaultScore, defaultTier float64) ParticipantRecord {
	scores := make([]float64, milestones)
	for i := range scores {
		scores[i] = defaultScore
	}
	return ParticipantRecord{
		WalletAddress:   wallet,
		MilestoneScores: scores,
		Tier:            defaultTier,
	}
}

// Score returns the score of milestone i (1-based).
func (r ParticipantRecord) Score(i int) (float64, bool) {
	if i < 1 || i > len(r.MilestoneScores) {
		return 0, false
	}
	return r.MilestoneScores[i-1], true
}

// Clone returns a copy that shares no memory with r.
func (r ParticipantRecord) Clone() ParticipantRecord {
	out := r
	out.MilestoneScores = append([]float64(nil), r.MilestoneScores...)
	return out
}

// NormalizeWallet returns the canonical lowercase key for a wallet address.
// When strict is set the input must be a 20 byte hex address; the 0x prefix
// is added when missing.
func NormalizeWallet(addr string, strict bool) (string, error) {
	w := strings.ToLower(strings.TrimSpace(addr))
	if w == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidWallet)
	}
	if !strict {
		return w, nil
	}
	if !common.IsHexAddress(w) {
		return "", fmt.Errorf("%w: %q is not a hex address", ErrInvalidWallet, addr)
	}
	if !strings.HasPrefix(w, "0x") {
		w = "0x" + w
	}
	return w, nil
}
