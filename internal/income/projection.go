// Package income projects annual income from year-to-date earnings and
// aggregates recurring income streams. Everything here is pure: no I/O, no
// shared state, safe for any number of concurrent callers.
package income

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autolytiq/income-service/internal/domain"
)

var (
	// ErrInvalidInput covers unparseable or non-positive earnings and bad dates.
	ErrInvalidInput = errors.New("invalid income input")
	// ErrInvalidDateRange is returned when the as-of date precedes the effective start.
	ErrInvalidDateRange = errors.New("as-of date must not be before the start date")
	// ErrUnknownFrequency means a stream carries a frequency outside the closed set.
	ErrUnknownFrequency = errors.New("unknown income frequency")
	// ErrInvalidStream is returned for streams violating the stream invariants.
	ErrInvalidStream = errors.New("invalid income stream")
)

// DateLayout is the only accepted calendar date format.
const DateLayout = "2006-01-02"

var (
	daysPerYear   = decimal.NewFromInt(365)
	monthsPerYear = decimal.NewFromInt(12)
	weeksPerYear  = decimal.NewFromInt(52)

	autoPaymentRatio = decimal.RequireFromString("0.12")
	rentRatio        = decimal.RequireFromString("0.30")
)

// ParseInput turns raw form values into an IncomeInput. An empty asOf means
// today, relative to now. Earnings may carry a currency symbol and grouping
// commas ("$10,000.50").
func ParseInput(ytdEarnings, employmentStart, asOf string, now time.Time) (domain.IncomeInput, error) {
	earnings, err := parseAmount(ytdEarnings, "year-to-date earnings")
	if err != nil {
		return domain.IncomeInput{}, err
	}

	start, err := parseDate(employmentStart)
	if err != nil {
		return domain.IncomeInput{}, fmt.Errorf("%w: employment start date: %v", ErrInvalidInput, err)
	}

	today := civilDate(now)
	asOfDate := today
	if strings.TrimSpace(asOf) != "" {
		asOfDate, err = parseDate(asOf)
		if err != nil {
			return domain.IncomeInput{}, fmt.Errorf("%w: as-of date: %v", ErrInvalidInput, err)
		}
		if asOfDate.After(today) {
			return domain.IncomeInput{}, fmt.Errorf("%w: as-of date %s is in the future", ErrInvalidInput, asOfDate.Format(DateLayout))
		}
	}

	return domain.IncomeInput{
		YTDEarnings:         earnings,
		EmploymentStartDate: start,
		AsOfDate:            asOfDate,
	}, nil
}

// Project annualizes year-to-date earnings. The start date is clipped to
// January 1 of the as-of year because YTD figures reset every January. The
// as-of date may not fall after the calendar day of now.
func Project(input domain.IncomeInput, now time.Time) (domain.ProjectionResult, error) {
	if !input.YTDEarnings.IsPositive() {
		return domain.ProjectionResult{}, fmt.Errorf("%w: year-to-date earnings must be greater than 0", ErrInvalidInput)
	}
	if input.EmploymentStartDate.IsZero() || input.AsOfDate.IsZero() {
		return domain.ProjectionResult{}, fmt.Errorf("%w: both dates are required", ErrInvalidInput)
	}

	asOf := civilDate(input.AsOfDate)
	if asOf.After(civilDate(now)) {
		return domain.ProjectionResult{}, fmt.Errorf("%w: as-of date %s is in the future", ErrInvalidInput, asOf.Format(DateLayout))
	}
	start := civilDate(input.EmploymentStartDate)
	yearStart := time.Date(asOf.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	effectiveStart := start
	if start.Before(yearStart) {
		effectiveStart = yearStart
	}

	// Inclusive of both ends.
	days := int(asOf.Sub(effectiveStart).Hours()/24) + 1
	if days <= 0 {
		return domain.ProjectionResult{}, fmt.Errorf("%w: %s is before %s", ErrInvalidDateRange,
			asOf.Format(DateLayout), effectiveStart.Format(DateLayout))
	}

	daily := input.YTDEarnings.Div(decimal.NewFromInt(int64(days)))
	annual := daily.Mul(daysPerYear)

	return domain.ProjectionResult{
		EffectiveStartDate: effectiveStart,
		DaysWorked:         days,
		DailyRate:          daily,
		WeeklyRate:         annual.Div(weeksPerYear),
		MonthlyRate:        annual.Div(monthsPerYear),
		AnnualRate:         annual,
	}, nil
}

// FromMonthly builds a projection from a manually entered monthly income.
// DaysWorked is zero because no date range backs the figure.
func FromMonthly(monthly decimal.Decimal) (domain.ProjectionResult, error) {
	if !monthly.IsPositive() {
		return domain.ProjectionResult{}, fmt.Errorf("%w: monthly income must be greater than 0", ErrInvalidInput)
	}

	annual := monthly.Mul(monthsPerYear)
	return domain.ProjectionResult{
		DailyRate:   annual.Div(daysPerYear),
		WeeklyRate:  annual.Div(weeksPerYear),
		MonthlyRate: monthly,
		AnnualRate:  annual,
	}, nil
}

// ParseMonthly projects a raw monthly income entry such as "$4,200".
func ParseMonthly(raw string) (domain.ProjectionResult, error) {
	monthly, err := parseAmount(raw, "monthly income")
	if err != nil {
		return domain.ProjectionResult{}, err
	}
	return FromMonthly(monthly)
}

// DeriveAffordability applies the 12% payment-to-income guideline for auto
// payments and the 30% guideline for rent.
func DeriveAffordability(monthly decimal.Decimal) domain.Affordability {
	return domain.Affordability{
		MaxAutoPayment: monthly.Mul(autoPaymentRatio),
		MaxRent:        monthly.Mul(rentRatio),
	}
}

// View rounds a projection to whole currency units for display. Affordability
// is derived from the unrounded monthly rate.
func View(result domain.ProjectionResult) domain.ProjectionView {
	afford := DeriveAffordability(result.MonthlyRate)

	view := domain.ProjectionView{
		DaysWorked:     result.DaysWorked,
		GrossDaily:     wholeUnits(result.DailyRate),
		GrossWeekly:    wholeUnits(result.WeeklyRate),
		GrossMonthly:   wholeUnits(result.MonthlyRate),
		GrossAnnual:    wholeUnits(result.AnnualRate),
		MaxAutoPayment: wholeUnits(afford.MaxAutoPayment),
		MaxRent:        wholeUnits(afford.MaxRent),
	}
	if !result.EffectiveStartDate.IsZero() {
		view.EffectiveStartDate = result.EffectiveStartDate.Format(DateLayout)
	}
	return view
}

func wholeUnits(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

func parseAmount(raw, label string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is required", ErrInvalidInput, label)
	}

	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s %q is not a number", ErrInvalidInput, label, raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must be greater than 0", ErrInvalidInput, label)
	}
	return amount, nil
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(raw))
}

// civilDate drops the clock so day arithmetic is exact.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
