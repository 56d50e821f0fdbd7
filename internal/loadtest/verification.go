package loadtest

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/internal/domain/funding"
	"github.com/okian/crowdfund/internal/domain/selection"
	"github.com/okian/crowdfund/pkg/logger"
)

// verifyPlans reads every wallet back and compares it with its plan.
// Wallets with a rejected write are skipped.
func verifyPlans(ctx context.Context, client *HTTPClient, config *Config, c *catalog.Catalog, plans []plan, stats *Stats) error {
	logger.Get().Info(ctx, "verifying participants", logger.Int("count", len(plans)))

	var mu sync.Mutex
	record := func(wallet string, limited int, problems []string) {
		mu.Lock()
		defer mu.Unlock()
		stats.RateLimited += limited
		if len(problems) == 0 {
			stats.Verified++
			return
		}
		stats.Mismatches++
		for _, p := range problems {
			if len(stats.Failures) < maxReportedFailures {
				stats.Failures = append(stats.Failures, wallet+": "+p)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := range plans {
		p := plans[i]
		if p.Failed {
			continue
		}
		g.Go(func() error {
			var v participantView
			status, limited, err := retryLimited(gctx, func() (int, error) {
				return client.getJSON(gctx, "/participants/"+url.PathEscape(p.Wallet), &v)
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				record(p.Wallet, limited, []string{err.Error()})
				return nil
			}
			if status != http.StatusOK {
				record(p.Wallet, limited, []string{fmt.Sprintf("read back status %d", status)})
				return nil
			}
			record(p.Wallet, limited, compare(c, p, v))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, f := range stats.Failures {
		logger.Get().Warn(ctx, "verification mismatch", logger.String("detail", f))
	}
	logger.Get().Info(ctx, "verification completed",
		logger.Int("verified", stats.Verified),
		logger.Int("mismatches", stats.Mismatches))

	if stats.Mismatches > 0 {
		return fmt.Errorf("%w: %d of %d participants differ", ErrVerification, stats.Mismatches, stats.Mismatches+stats.Verified)
	}
	return nil
}

// compare lists every way v differs from what p should have left behind.
func compare(c *catalog.Catalog, p plan, v participantView) []string {
	var problems []string
	want := p.Expected

	if v.Stale {
		problems = append(problems, "served a stale view")
	}
	if v.Record.WalletAddress != want.WalletAddress {
		problems = append(problems, fmt.Sprintf("wallet %q, want %q", v.Record.WalletAddress, want.WalletAddress))
	}
	if len(v.Record.MilestoneScores) != len(want.MilestoneScores) {
		problems = append(problems, fmt.Sprintf("%d scores, want %d", len(v.Record.MilestoneScores), len(want.MilestoneScores)))
		return problems
	}
	for i, s := range want.MilestoneScores {
		if got := v.Record.MilestoneScores[i]; got != s {
			problems = append(problems, fmt.Sprintf("milestone %d score %v, want %v", i+1, got, s))
		}
	}
	if v.Record.Tier != want.Tier {
		problems = append(problems, fmt.Sprintf("tier %v, want %v", v.Record.Tier, want.Tier))
	}

	problems = append(problems, checkFunding(c, want.MilestoneScores, want.Tier, v)...)
	problems = append(problems, checkSelection(c, p, v)...)
	return problems
}

// checkFunding verifies the allocations sum to tier * multiplier.
func checkFunding(c *catalog.Catalog, scores []float64, tier float64, v participantView) []string {
	var problems []string
	if len(v.Funding) != len(scores) {
		return append(problems, fmt.Sprintf("%d allocations, want %d", len(v.Funding), len(scores)))
	}

	scoreSum := 0.0
	for _, s := range scores {
		scoreSum += s
	}
	wantTotal := 0.0
	if scoreSum != 0 {
		wantTotal = tier * c.Multiplier
	}

	got := funding.Total(v.Funding)
	if math.Abs(got-wantTotal) > fundingTolerance*math.Max(1, math.Abs(wantTotal)) {
		problems = append(problems, fmt.Sprintf("funding sums to %v, want %v", got, wantTotal))
	}
	for i, a := range v.Funding {
		if a.Display != funding.Format(a.Value) {
			problems = append(problems, fmt.Sprintf("milestone %d display %q for %v", i+1, a.Display, a.Value))
		}
	}
	if v.Total != funding.Format(got) {
		problems = append(problems, fmt.Sprintf("total %q, want %q", v.Total, funding.Format(got)))
	}
	return problems
}

// checkSelection verifies the marked options follow the first-match rule.
func checkSelection(c *catalog.Catalog, p plan, v participantView) []string {
	var problems []string
	if len(v.Selection.Milestones) != len(p.Expected.MilestoneScores) {
		return append(problems, fmt.Sprintf("%d milestone indicators, want %d", len(v.Selection.Milestones), len(p.Expected.MilestoneScores)))
	}
	for i, ms := range v.Selection.Milestones {
		idx := i + 1
		want, ok := selection.FindActiveScoreOption(idx, p.Expected.MilestoneScores[i], c.OptionsFor(idx))
		problems = append(problems, selectionProblem(fmt.Sprintf("milestone %d", idx), want, ok, ms.Selected)...)
	}
	want, ok := selection.FindActiveTierOption(p.Expected.Tier, c.Tiers)
	return append(problems, selectionProblem("tier", want, ok, v.Selection.Tier)...)
}

func selectionProblem(what string, want catalog.Option, ok bool, got *catalog.Option) []string {
	switch {
	case ok && got == nil:
		return []string{fmt.Sprintf("%s shows no selection, want %s", what, want.ID)}
	case !ok && got != nil:
		return []string{fmt.Sprintf("%s selects %s, want none", what, got.ID)}
	case ok && got.ID != want.ID:
		return []string{fmt.Sprintf("%s selects %s, want %s", what, got.ID, want.ID)}
	}
	return nil
}
