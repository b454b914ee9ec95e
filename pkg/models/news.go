package models

import "fmt"

// Tier is the severity bucket assigned to a news item.
type Tier string

const (
	TierRed   Tier = "RED"   // critical
	TierAmber Tier = "AMBER" // warning
	TierGreen Tier = "GREEN" // normal
)

// AllTiers returns every tier in precedence order (most severe first).
func AllTiers() []Tier {
	return []Tier{TierRed, TierAmber, TierGreen}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierRed, TierAmber, TierGreen:
		return true
	}
	return false
}

// Rank orders tiers by precedence: RED=0, AMBER=1, GREEN=2.
// Unknown tiers rank last.
func (t Tier) Rank() int {
	switch t {
	case TierRed:
		return 0
	case TierAmber:
		return 1
	case TierGreen:
		return 2
	}
	return 3
}

func (t Tier) String() string { return string(t) }

// MarshalText rejects unknown tiers so a corrupt value never reaches a payload.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %q", string(t))
	}
	return []byte(t), nil
}

// UnmarshalText accepts only the canonical upper-case tier names.
func (t *Tier) UnmarshalText(b []byte) error {
	v := Tier(b)
	if !v.Valid() {
		return fmt.Errorf("invalid tier %q", string(b))
	}
	*t = v
	return nil
}

// ParseTier parses a tier name as written in configuration files.
func ParseTier(s string) (Tier, error) {
	var t Tier
	err := t.UnmarshalText([]byte(s))
	return t, err
}

// NewsItem is one classified news entry.
type NewsItem struct {
	Keyword string `json:"keyword"` // query term that produced the item
	Title   string `json:"title"`
	Link    string `json:"link"` // absolute URL, or "#" for synthesized items
	Date    string `json:"date"` // YYYY-MM-DD
	Risk    Tier   `json:"risk"`
}

// PlaceholderLink marks items that were synthesized rather than collected.
const PlaceholderLink = "#"

// IsPlaceholder reports whether the item was synthesized as fallback data.
func (n NewsItem) IsPlaceholder() bool {
	return n.Link == PlaceholderLink
}

// TierCounts tallies items per tier.
func TierCounts(items []NewsItem) map[Tier]int {
	counts := make(map[Tier]int, 3)
	for _, it := range items {
		counts[it.Risk]++
	}
	return counts
}
