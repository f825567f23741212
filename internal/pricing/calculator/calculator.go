// Package calculator turns support hours into tiered amounts.
//
// Calculate is pure: identical inputs always produce identical breakdowns, which is
// what lets a disputed invoice be recomputed from its stored snapshot.
package calculator

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/hourbill/internal/pricing/domain"
)

// Entry is one work item as seen by the calculator. Hours are validated by the caller.
type Entry struct {
	Urgency string
	Hours   decimal.Decimal
}

type TierLine struct {
	Tier          pricingdomain.Tier `json:"tier"`
	Rate          decimal.Decimal    `json:"rate"`
	RawHours      decimal.Decimal    `json:"raw_hours"`
	FreeHours     decimal.Decimal    `json:"free_hours"`
	BillableHours decimal.Decimal    `json:"billable_hours"`
	GrossAmount   decimal.Decimal    `json:"gross_amount"`
	Amount        decimal.Decimal    `json:"amount"`
}

type Breakdown struct {
	PeriodStart      time.Time            `json:"period_start"`
	Policy           pricingdomain.Policy `json:"policy"`
	CreditsEligible  bool                 `json:"credits_eligible"`
	EntryCount       int                  `json:"entry_count"`
	Lines            []TierLine           `json:"lines"`
	TotalHours       decimal.Decimal      `json:"total_hours"`
	BillableHours    decimal.Decimal      `json:"billable_hours"`
	FreeHoursApplied decimal.Decimal      `json:"free_hours_applied"`
	GrossSubtotal    decimal.Decimal      `json:"gross_subtotal"`
	Subtotal         decimal.Decimal      `json:"subtotal"`
}

// Line returns the line for tier; a zero line when the breakdown has none.
func (b Breakdown) Line(tier pricingdomain.Tier) TierLine {
	for _, line := range b.Lines {
		if line.Tier == tier {
			return line
		}
	}
	return TierLine{Tier: tier}
}

// FreeCreditValue is what the applied free hours would have cost.
func (b Breakdown) FreeCreditValue() decimal.Decimal {
	return b.GrossSubtotal.Sub(b.Subtotal)
}

// TierForUrgency maps HIGH to emergency, MEDIUM to same-day and anything else to regular.
func TierForUrgency(urgency string) pricingdomain.Tier {
	switch strings.ToUpper(strings.TrimSpace(urgency)) {
	case "HIGH":
		return pricingdomain.TierEmergency
	case "MEDIUM":
		return pricingdomain.TierSameDay
	default:
		return pricingdomain.TierRegular
	}
}

// RoundMoney rounds to cents.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

func Calculate(entries []Entry, periodStart time.Time, policy pricingdomain.Policy) Breakdown {
	raw := map[pricingdomain.Tier]decimal.Decimal{}
	total := decimal.Zero
	for _, entry := range entries {
		tier := TierForUrgency(entry.Urgency)
		raw[tier] = raw[tier].Add(entry.Hours)
		total = total.Add(entry.Hours)
	}

	eligible := policy.CreditsApply(periodStart)
	remaining := decimal.Zero
	if eligible {
		remaining = decimal.Min(total, policy.FreeCredits.PoolHours)
	}

	out := Breakdown{
		PeriodStart:     periodStart,
		Policy:          policy,
		CreditsEligible: eligible,
		EntryCount:      len(entries),
		Lines:           make([]TierLine, 0, len(pricingdomain.Tiers)),
		TotalHours:      total,
	}

	for _, tier := range pricingdomain.Tiers {
		hours := raw[tier]
		free := decimal.Min(remaining, hours)
		remaining = remaining.Sub(free)
		billable := hours.Sub(free)
		rate := policy.Rates.For(tier)

		line := TierLine{
			Tier:          tier,
			Rate:          rate,
			RawHours:      hours,
			FreeHours:     free,
			BillableHours: billable,
			GrossAmount:   RoundMoney(hours.Mul(rate)),
			Amount:        RoundMoney(billable.Mul(rate)),
		}
		out.Lines = append(out.Lines, line)
		out.BillableHours = out.BillableHours.Add(billable)
		out.FreeHoursApplied = out.FreeHoursApplied.Add(free)
		out.GrossSubtotal = out.GrossSubtotal.Add(line.GrossAmount)
		out.Subtotal = out.Subtotal.Add(line.Amount)
	}

	return out
}
