// Package severity assigns a risk tier to news text using ordered,
// configurable trigger lists.
package severity

import (
	"sort"
	"strings"

	"github.com/seenimoa/riskwatch/pkg/models"
)

// Rule binds a tier to the trigger substrings that select it.
type Rule struct {
	Tier     models.Tier
	Triggers []string
}

// Default trigger dictionaries (Korean security / safety incident vocabulary).
var (
	DefaultRed   = []string{"사망", "유출", "해킹", "화재", "구속"}
	DefaultAmber = []string{"주의", "오류", "점검", "취약"}
)

// Classifier evaluates rules first-match-wins. Rules are kept sorted by tier
// precedence so a RED trigger always beats an AMBER one.
type Classifier struct {
	rules    []Rule
	fallback models.Tier
}

// NewClassifier builds a classifier from rules. Triggers are lower-cased and
// blank triggers dropped; rules with an invalid tier or no triggers are ignored.
// Text matching no rule is GREEN.
func NewClassifier(rules ...Rule) *Classifier {
	clean := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !r.Tier.Valid() {
			continue
		}
		triggers := make([]string, 0, len(r.Triggers))
		for _, tr := range r.Triggers {
			tr = strings.ToLower(strings.TrimSpace(tr))
			if tr != "" {
				triggers = append(triggers, tr)
			}
		}
		if len(triggers) == 0 {
			continue
		}
		clean = append(clean, Rule{Tier: r.Tier, Triggers: triggers})
	}

	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].Tier.Rank() < clean[j].Tier.Rank()
	})

	return &Classifier{rules: clean, fallback: models.TierGreen}
}

// FromLists is a convenience for the two-list configuration shape.
func FromLists(red, amber []string) *Classifier {
	return NewClassifier(
		Rule{Tier: models.TierRed, Triggers: red},
		Rule{Tier: models.TierAmber, Triggers: amber},
	)
}

// Default returns a classifier with the built-in trigger lists.
func Default() *Classifier {
	return FromLists(DefaultRed, DefaultAmber)
}

// Classify returns the tier for text. It never fails.
func (c *Classifier) Classify(text string) models.Tier {
	tier, _ := c.Match(text)
	return tier
}

// Match returns the tier for text together with the trigger that selected
// it. The trigger is empty when no rule matched.
func (c *Classifier) Match(text string) (models.Tier, string) {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, tr := range r.Triggers {
			if strings.Contains(lower, tr) {
				return r.Tier, tr
			}
		}
	}
	return c.fallback, ""
}

// Rules returns a copy of the normalized rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = Rule{Tier: r.Tier, Triggers: append([]string(nil), r.Triggers...)}
	}
	return out
}
