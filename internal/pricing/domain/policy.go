// Package domain holds the pricing policy applied to billable support hours.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the rate bucket a work item's urgency maps to.
type Tier string

const (
	TierRegular   Tier = "regular"
	TierSameDay   Tier = "same_day"
	TierEmergency Tier = "emergency"
)

// Tiers lists tiers cheapest first. Free credits are consumed in this order.
var Tiers = []Tier{TierRegular, TierSameDay, TierEmergency}

// Label is the human-readable name used on invoice lines.
func (t Tier) Label() string {
	switch t {
	case TierSameDay:
		return "Same-Day Support"
	case TierEmergency:
		return "Emergency Support"
	default:
		return "Regular Support"
	}
}

// Rates are currency units per hour.
type Rates struct {
	Regular   decimal.Decimal `json:"regular"`
	SameDay   decimal.Decimal `json:"same_day"`
	Emergency decimal.Decimal `json:"emergency"`
}

func (r Rates) For(tier Tier) decimal.Decimal {
	switch tier {
	case TierSameDay:
		return r.SameDay
	case TierEmergency:
		return r.Emergency
	default:
		return r.Regular
	}
}

type FreeCredits struct {
	PoolHours     decimal.Decimal `json:"pool_hours"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// Policy is passed explicitly into every calculation so a stored invoice can be
// re-priced with the exact values it was generated with.
type Policy struct {
	Rates       Rates       `json:"rates"`
	FreeCredits FreeCredits `json:"free_credits"`
}

// CreditsApply reports whether a period starting at periodStart is eligible for free credits.
func (p Policy) CreditsApply(periodStart time.Time) bool {
	return !periodStart.Before(p.FreeCredits.EffectiveDate)
}

var (
	ErrInvalidRate        = errors.New("invalid_rate")
	ErrInvalidPoolHours   = errors.New("invalid_pool_hours")
	ErrMissingEffectiveOn = errors.New("missing_effective_date")
)

func (p Policy) Validate() error {
	for _, tier := range Tiers {
		if rate := p.Rates.For(tier); rate.IsNegative() || !fitsCents(rate) {
			return ErrInvalidRate
		}
	}
	if pool := p.FreeCredits.PoolHours; pool.IsNegative() || !fitsCents(pool) {
		return ErrInvalidPoolHours
	}
	if p.FreeCredits.EffectiveDate.IsZero() {
		return ErrMissingEffectiveOn
	}
	return nil
}

// fitsCents reports whether v has at most two decimal places, the scale rates and hours
// are stored at.
func fitsCents(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(2))
}

// DefaultPolicy is the agency's standard rate card.
func DefaultPolicy() Policy {
	return Policy{
		Rates: Rates{
			Regular:   decimal.NewFromInt(150),
			SameDay:   decimal.NewFromInt(175),
			Emergency: decimal.NewFromInt(250),
		},
		FreeCredits: FreeCredits{
			PoolHours:     decimal.NewFromInt(10),
			EffectiveDate: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// Source yields the policy in force for new invoices.
type Source interface {
	Current() Policy
	ExcludedCategories() []string
}

type staticSource struct {
	policy   Policy
	excluded []string
}

// NewStaticSource returns a Source that never changes.
func NewStaticSource(policy Policy, excluded ...string) Source {
	return staticSource{policy: policy, excluded: excluded}
}

func (s staticSource) Current() Policy              { return s.policy }
func (s staticSource) ExcludedCategories() []string { return s.excluded }
