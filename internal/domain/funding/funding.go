// Package funding splits a participant's tier across milestones in
// proportion to the milestone scores.
package funding

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/okian/crowdfund/internal/domain/model"
	"github.com/okian/crowdfund/pkg/metrics"
)

// CurrencySymbol prefixes every display amount.
const CurrencySymbol = "$"

// Amount is the funding attributed to one milestone.
type Amount struct {
	Value   float64 `json:"value"`
	Display string  `json:"display"`
}

// Allocate returns one amount per score:
//
//	amount[i] = scores[i] / sum(scores) * tier * multiplier
//
// A zero total yields all zero amounts. NaN, infinite and negative inputs
// count as 0, and so does a tier*multiplier product that overflows, so
// Allocate never fails and every value is finite.
func Allocate(scores []float64, tier, multiplier float64) []Amount {
	budget := sanitize(sanitize(tier) * sanitize(multiplier))

	// Scale by the largest score so the sum stays finite.
	clean := make([]float64, len(scores))
	peak := 0.0
	for i, s := range scores {
		clean[i] = sanitize(s)
		peak = math.Max(peak, clean[i])
	}
	total := 0.0
	if peak > 0 {
		for i := range clean {
			clean[i] /= peak
			total += clean[i]
		}
	}

	out := make([]Amount, len(scores))
	for i, s := range clean {
		v := 0.0
		if total != 0 {
			v = sanitize(s / total * budget)
		}
		out[i] = Amount{Value: v, Display: Format(v)}
	}
	return out
}

// Total sums the unrounded values. A sum that overflows is reported as 0.
func Total(amounts []Amount) float64 {
	sum := 0.0
	for _, a := range amounts {
		sum += a.Value
	}
	return sanitize(sum)
}

// Format renders v with one fractional digit and the currency symbol.
// Exact ties round away from zero, matching Number.prototype.toFixed.
func Format(v float64) string {
	v = sanitize(v)
	r := new(big.Rat).SetFloat64(v)
	r.Mul(r, big.NewRat(10, 1))
	r.Add(r, big.NewRat(1, 2))
	tenths := new(big.Int).Quo(r.Num(), r.Denom())
	whole, frac := new(big.Int).QuoRem(tenths, big.NewInt(10), new(big.Int))
	return CurrencySymbol + whole.String() + "." + frac.String()
}

// Coerce turns a loosely typed value into a number the way Number(x || 0)
// does: nil, false, empty and non-numeric strings become 0.
func Coerce(v any) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		f = parse(string(x))
	case string:
		f = parse(x)
	case []byte:
		f = parse(string(x))
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parse(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// Allocator holds the global multiplier so callers only pass the
// participant's own inputs.
type Allocator struct {
	multiplier float64
}

// NewAllocator returns an Allocator using multiplier for every allocation.
func NewAllocator(multiplier float64) *Allocator {
	return &Allocator{multiplier: multiplier}
}

// Multiplier returns the configured multiplier.
func (a *Allocator) Multiplier() float64 { return a.multiplier }

// Allocate splits tier across scores.
func (a *Allocator) Allocate(scores []float64, tier float64) []Amount {
	metrics.RecordAllocation()
	return Allocate(scores, tier, a.multiplier)
}

// AllocateRecord allocates a participant record.
func (a *Allocator) AllocateRecord(r model.ParticipantRecord) []Amount {
	return a.Allocate(r.MilestoneScores, r.Tier)
}
