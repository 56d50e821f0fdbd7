// Package selection decides which configured option the UI marks as
// selected for a participant's current scores and tier.
package selection

import (
	"fmt"

	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/internal/domain/model"
)

// FindActiveScoreOption returns the first active option of milestone whose
// value equals current. Values are compared as strings, so 50 and "50"
// match. The second result is false when nothing matches and the UI should
// hide its indicator.
func FindActiveScoreOption(milestone int, current any, options []catalog.Option) (catalog.Option, bool) {
	if current == nil {
		return catalog.Option{}, false
	}
	want := catalog.CanonicalValue(valueString(current))
	for _, o := range options {
		if o.Milestone != milestone || !o.Active {
			continue
		}
		if catalog.CanonicalValue(o.Value) == want {
			return o, true
		}
	}
	return catalog.Option{}, false
}

// FindActiveTierOption is FindActiveScoreOption for the tier buttons.
func FindActiveTierOption(current any, tiers []catalog.Option) (catalog.Option, bool) {
	if current == nil {
		return catalog.Option{}, false
	}
	want := catalog.CanonicalValue(valueString(current))
	for _, o := range tiers {
		if !o.Active {
			continue
		}
		if catalog.CanonicalValue(o.Value) == want {
			return o, true
		}
	}
	return catalog.Option{}, false
}

func valueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return catalog.FormatNumber(x)
	case float32:
		return catalog.FormatNumber(float64(x))
	default:
		return fmt.Sprint(x)
	}
}

// MilestoneSelection is the indicator state of one milestone.
type MilestoneSelection struct {
	Index    int             `json:"index"`
	Score    float64         `json:"score"`
	Selected *catalog.Option `json:"selected,omitempty"` // nil: NoSelectionShown
}

// Selection is the indicator state for a whole participant record.
type Selection struct {
	Milestones []MilestoneSelection `json:"milestones"`
	Tier       *catalog.Option      `json:"tier,omitempty"`
}

// Presenter binds the lookups to a catalog.
type Presenter struct {
	catalog *catalog.Catalog
}

// NewPresenter returns a Presenter over c.
func NewPresenter(c *catalog.Catalog) *Presenter {
	return &Presenter{catalog: c}
}

// ScoreOption finds the selected option for milestone i of r.
func (p *Presenter) ScoreOption(r model.ParticipantRecord, i int) (catalog.Option, bool) {
	score, ok := r.Score(i)
	if !ok {
		return catalog.Option{}, false
	}
	return FindActiveScoreOption(i, score, p.catalog.OptionsFor(i))
}

// TierOption finds the selected tier option of r.
func (p *Presenter) TierOption(r model.ParticipantRecord) (catalog.Option, bool) {
	return FindActiveTierOption(r.Tier, p.catalog.Tiers)
}

// Present computes every indicator for r.
func (p *Presenter) Present(r model.ParticipantRecord) Selection {
	out := Selection{Milestones: make([]MilestoneSelection, 0, len(r.MilestoneScores))}
	for i := 1; i <= len(r.MilestoneScores); i++ {
		ms := MilestoneSelection{Index: i, Score: r.MilestoneScores[i-1]}
		if o, ok := p.ScoreOption(r, i); ok {
			o := o
			ms.Selected = &o
		}
		out.Milestones = append(out.Milestones, ms)
	}
	if o, ok := p.TierOption(r); ok {
		out.Tier = &o
	}
	return out
}
