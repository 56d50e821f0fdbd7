// Package catalog holds the milestone and tier button configuration the UI
// renders. The raw file uses flat keys (MilestoneButton3,
// MilestoneScoringButton3.2, TierButton1, ...); Parse groups them by their
// numeric prefix once at load time so callers never build key strings.
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.json
var defaultCatalog []byte

// Raw file keys.
const (
	keyDefaultScore   = "defaultMilestoneScore"
	keyDefaultTier    = "DefaultTier"
	keyMultiplier     = "MatchingMultiplier"
	keyButtonsVisible = "MilestoneButtonsVisible"
	keyMilestoneCount = "MilestoneCount"
)

// MaxMilestones is the largest milestone count a catalog may declare.
const MaxMilestones = 1024

var (
	milestoneKey = regexp.MustCompile(`^MilestoneButton(\d+)$`)
	scoringKey   = regexp.MustCompile(`^MilestoneScoringButton(\d+)\.(\d+)$`)
	tierKey      = regexp.MustCompile(`^TierButton(\d+)$`)
	fundingKey   = regexp.MustCompile(`^FundingCalculation(\d+)$`)
)

// Placement is where the UI draws a button or indicator. Values are CSS
// lengths taken verbatim from the file ("12.5%", "40px").
type Placement struct {
	X      string `json:"x"`
	Y      string `json:"y"`
	Width  string `json:"width"`
	Height string `json:"height"`
}

// Option is one selectable value: a scoring button of a milestone or a
// tier button.
type Option struct {
	ID        string    `json:"id"`
	Milestone int       `json:"milestone,omitempty"` // 0 for tier options
	Slot      int       `json:"slot"`
	Value     string    `json:"value"`
	Active    bool      `json:"active"`
	Placement Placement `json:"placement"`
}

// Number returns the option value as a number.
func (o Option) Number() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(o.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Milestone is a milestone button plus its scoring options.
type Milestone struct {
	Index     int        `json:"index"`
	ID        string     `json:"id"`
	Active    bool       `json:"active"`
	Animation int        `json:"animation"`
	Placement Placement  `json:"placement"`
	Funding   *Placement `json:"funding,omitempty"`
	Options   []Option   `json:"options"`
}

// Catalog is the grouped configuration. It is read-only after Parse.
type Catalog struct {
	Milestones     []Milestone `json:"milestones"`
	Tiers          []Option    `json:"tiers"`
	DefaultScore   float64     `json:"default_score"`
	DefaultTier    float64     `json:"default_tier"`
	Multiplier     float64     `json:"multiplier"`
	ButtonsVisible bool        `json:"buttons_visible"`
}

// Count is the number of milestone slots N.
func (c *Catalog) Count() int { return len(c.Milestones) }

// Milestone returns milestone i (1-based).
func (c *Catalog) Milestone(i int) (Milestone, bool) {
	if i < 1 || i > len(c.Milestones) {
		return Milestone{}, false
	}
	return c.Milestones[i-1], true
}

// OptionsFor returns the scoring options of milestone i, or nil when i is
// out of range.
func (c *Catalog) OptionsFor(i int) []Option {
	m, ok := c.Milestone(i)
	if !ok {
		return nil
	}
	return m.Options
}

// ValidIndex reports whether i names a milestone slot.
func (c *Catalog) ValidIndex(i int) bool {
	return i >= 1 && i <= len(c.Milestones)
}

// TierValues returns the numeric values of active tier options in slot order.
func (c *Catalog) TierValues() []float64 {
	out := make([]float64, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		if !t.Active {
			continue
		}
		if v, ok := t.Number(); ok {
			out = append(out, v)
		}
	}
	return out
}

// Default returns the built-in catalog: 8 milestones, 5 tiers.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// Load reads and parses a catalog file. JSON and YAML are both accepted.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidCatalog, path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

type rawButton struct {
	Active    bool   `yaml:"Active"`
	Value     string `yaml:"value"`
	Animation string `yaml:"animation"`
	X         string `yaml:"positionXaxis"`
	Y         string `yaml:"positionYaxis"`
	Width     string `yaml:"width"`
	Height    string `yaml:"height"`
}

func (b rawButton) placement() Placement {
	return Placement{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

// Parse builds a Catalog from the flat button file.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", ErrInvalidCatalog)
	}

	c := &Catalog{Multiplier: 1, ButtonsVisible: true}
	milestones := map[int]*Milestone{}
	funding := map[int]Placement{}
	scoring := map[int][]Option{}
	count := 0

	get := func(i int) *Milestone {
		m, ok := milestones[i]
		if !ok {
			m = &Milestone{Index: i}
			milestones[i] = m
		}
		return m
	}

	for key, node := range raw {
		node := node
		switch {
		case milestoneKey.MatchString(key):
			i := atoi(milestoneKey.FindStringSubmatch(key)[1])
			b, err := decodeButton(key, &node)
			if err != nil {
				return nil, err
			}
			m := get(i)
			m.ID = key
			m.Active = b.Active
			m.Placement = b.placement()
			m.Animation = atoi(strings.TrimSpace(b.Animation))
			count = max(count, i)

		case scoringKey.MatchString(key):
			sub := scoringKey.FindStringSubmatch(key)
			i, slot := atoi(sub[1]), atoi(sub[2])
			b, err := decodeButton(key, &node)
			if err != nil {
				return nil, err
			}
			scoring[i] = append(scoring[i], Option{
				ID:        key,
				Milestone: i,
				Slot:      slot,
				Value:     strings.TrimSpace(b.Value),
				Active:    b.Active,
				Placement: b.placement(),
			})
			count = max(count, i)

		case tierKey.MatchString(key):
			slot := atoi(tierKey.FindStringSubmatch(key)[1])
			b, err := decodeButton(key, &node)
			if err != nil {
				return nil, err
			}
			c.Tiers = append(c.Tiers, Option{
				ID:        key,
				Slot:      slot,
				Value:     strings.TrimSpace(b.Value),
				Active:    b.Active,
				Placement: b.placement(),
			})

		case fundingKey.MatchString(key):
			i := atoi(fundingKey.FindStringSubmatch(key)[1])
			b, err := decodeButton(key, &node)
			if err != nil {
				return nil, err
			}
			funding[i] = b.placement()

		case key == keyDefaultScore:
			v, err := decodeNumber(key, &node)
			if err != nil {
				return nil, err
			}
			c.DefaultScore = v

		case key == keyDefaultTier:
			v, err := decodeNumber(key, &node)
			if err != nil {
				return nil, err
			}
			c.DefaultTier = v

		case key == keyMultiplier:
			v, err := decodeNumber(key, &node)
			if err != nil {
				return nil, err
			}
			// Number(x || '1'): an empty or zero multiplier means 1.
			if v != 0 {
				c.Multiplier = v
			}

		case key == keyButtonsVisible:
			var visible bool
			if err := node.Decode(&visible); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, key, err)
			}
			c.ButtonsVisible = visible

		case key == keyMilestoneCount:
			v, err := decodeNumber(key, &node)
			if err != nil {
				return nil, err
			}
			if v > MaxMilestones {
				return nil, fmt.Errorf("%w: %s %v exceeds %d", ErrInvalidCatalog, key, v, MaxMilestones)
			}
			count = max(count, int(v))
		}
	}

	if count > MaxMilestones {
		return nil, fmt.Errorf("%w: milestone %d exceeds %d", ErrInvalidCatalog, count, MaxMilestones)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no milestones defined", ErrInvalidCatalog)
	}
	if c.DefaultScore < 0 || c.DefaultTier < 0 {
		return nil, fmt.Errorf("%w: defaults must not be negative", ErrInvalidCatalog)
	}

	c.Milestones = make([]Milestone, count)
	for i := 1; i <= count; i++ {
		m := get(i)
		if m.ID == "" {
			m.ID = "MilestoneButton" + strconv.Itoa(i)
		}
		opts := scoring[i]
		sort.Slice(opts, func(a, b int) bool { return opts[a].Slot < opts[b].Slot })
		m.Options = opts
		if p, ok := funding[i]; ok {
			p := p
			m.Funding = &p
		}
		c.Milestones[i-1] = *m
	}
	sort.Slice(c.Tiers, func(a, b int) bool { return c.Tiers[a].Slot < c.Tiers[b].Slot })

	return c, nil
}

func decodeButton(key string, node *yaml.Node) (rawButton, error) {
	var b rawButton
	if err := node.Decode(&b); err != nil {
		return rawButton{}, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, key, err)
	}
	return b, nil
}

// decodeNumber accepts numbers and numeric strings; empty strings are 0.
func decodeNumber(key string, node *yaml.Node) (float64, error) {
	var s string
	if err := node.Decode(&s); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, key, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: not a number: %q", ErrInvalidCatalog, key, s)
	}
	return v, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
