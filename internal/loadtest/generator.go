package loadtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/internal/domain/model"
	"github.com/okian/crowdfund/pkg/logger"
)

// randIntn returns a uniform value in [0, n) using crypto/rand.
func randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// newWallet returns a random lowercase 0x address.
func newWallet() (string, error) {
	var b [common.AddressLength]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return strings.ToLower(common.BytesToAddress(b[:]).Hex()), nil
}

// choices lists the values the service will accept for each target.
// Key 0 holds tier values; keys 1..N hold milestone scores.
func choices(c *catalog.Catalog) map[int][]float64 {
	out := make(map[int][]float64)
	if tiers := c.TierValues(); len(tiers) > 0 {
		out[0] = tiers
	}
	for i := 1; i <= c.Count(); i++ {
		for _, o := range c.OptionsFor(i) {
			if !o.Active {
				continue
			}
			if v, ok := o.Number(); ok && v >= 0 {
				out[i] = append(out[i], v)
			}
		}
	}
	return out
}

// generatePlans builds one plan per wallet with rounds random writes each.
func generatePlans(ctx context.Context, c *catalog.Catalog, cfg *Config) ([]plan, error) {
	logger.Get().Info(ctx, "generating participant plans",
		logger.Int("participants", cfg.Participants),
		logger.Int("rounds", cfg.Rounds))

	opts := choices(c)
	if len(opts) == 0 {
		return nil, fmt.Errorf("%w: catalog has no active numeric options", ErrInvalidConfig)
	}
	targets := make([]int, 0, len(opts))
	for i := 0; i <= c.Count(); i++ {
		if _, ok := opts[i]; ok {
			targets = append(targets, i)
		}
	}

	plans := make([]plan, cfg.Participants)
	for p := range plans {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during plan generation: %w", err)
		}
		wallet, err := newWallet()
		if err != nil {
			return nil, err
		}
		expected := model.NewParticipant(wallet, c.Count(), c.DefaultScore, c.DefaultTier)
		writes := make([]write, cfg.Rounds)
		for r := range writes {
			target := targets[randIntn(len(targets))]
			values := opts[target]
			w := write{Milestone: target, Value: values[randIntn(len(values))]}
			writes[r] = w
			if w.Milestone == 0 {
				expected.Tier = w.Value
			} else {
				expected.MilestoneScores[w.Milestone-1] = w.Value
			}
		}
		plans[p] = plan{Wallet: wallet, Writes: writes, Expected: expected}
	}

	logger.Get().Info(ctx, "generated participant plans", logger.Int("count", len(plans)))
	return plans, nil
}
