package service

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/hourbill/internal/invoice/domain"
)

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, invoicedomain.ErrInvalidDate
	}
	return parsed.UTC(), nil
}

func parseOptionalDate(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed, err := parseDate(*value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parsePeriod(start, end string) (time.Time, time.Time, error) {
	periodStart, err := parseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	periodEnd, err := parseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if periodEnd.Before(periodStart) {
		return time.Time{}, time.Time{}, invoicedomain.ErrInvalidPeriod
	}
	return periodStart, periodEnd, nil
}

// Stored scales: quantities, prices and amounts are NUMERIC(x,2), tax rates NUMERIC(8,4).
// Inputs with more places are rejected so the computed amount matches the stored row.
const (
	moneyPlaces = 2
	ratePlaces  = 4
)

// parseNonNegative parses a decimal that must be zero or more with at most places decimals.
func parseNonNegative(value string, places int32, invalid error) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || parsed.IsNegative() || !parsed.Equal(parsed.Truncate(places)) {
		return decimal.Zero, invalid
	}
	return parsed, nil
}

// parseTaxRate accepts a fraction between 0 and 1.
func parseTaxRate(value string) (decimal.Decimal, error) {
	rate, err := parseNonNegative(value, ratePlaces, invoicedomain.ErrInvalidTaxRate)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, invoicedomain.ErrInvalidTaxRate
	}
	return rate, nil
}

func optionalNonNegative(value *string, invalid error) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := parseNonNegative(*value, moneyPlaces, invalid)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
