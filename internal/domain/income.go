/**
 * @description
 * Domain models for income projection and income streams.
 * Money values are decimals; rounding to whole currency units only happens
 * in the view types returned to clients.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is how often an income stream pays out.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyAnnually Frequency = "annually"
)

// IncomeType classifies an income stream.
type IncomeType string

const (
	IncomeSalaried   IncomeType = "salaried"
	IncomeFreelance  IncomeType = "freelance"
	IncomeGig        IncomeType = "gig"
	IncomeRental     IncomeType = "rental"
	IncomeSideHustle IncomeType = "side-hustle"
	IncomeOther      IncomeType = "other"
)

// IncomeTypes lists every income type in display order.
var IncomeTypes = []IncomeType{
	IncomeSalaried,
	IncomeFreelance,
	IncomeGig,
	IncomeRental,
	IncomeSideHustle,
	IncomeOther,
}

// Valid reports whether t is a known income type.
func (t IncomeType) Valid() bool {
	for _, known := range IncomeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// StabilityRating is 1 (least reliable) through 5 (fully reliable).
type StabilityRating int

const (
	MinStabilityRating StabilityRating = 1
	MaxStabilityRating StabilityRating = 5
)

// Valid reports whether r is within 1..5.
func (r StabilityRating) Valid() bool {
	return r >= MinStabilityRating && r <= MaxStabilityRating
}

// IncomeStream is a named recurring income source owned by the client.
type IncomeStream struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            IncomeType      `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Frequency       Frequency       `json:"frequency"`
	StabilityRating StabilityRating `json:"stabilityRating"`
}

// IncomeInput are the raw facts used to project income.
type IncomeInput struct {
	YTDEarnings         decimal.Decimal
	EmploymentStartDate time.Time
	AsOfDate            time.Time
}

// ProjectionResult is the full precision projection. It is never mutated.
type ProjectionResult struct {
	EffectiveStartDate time.Time
	DaysWorked         int
	DailyRate          decimal.Decimal
	WeeklyRate         decimal.Decimal
	MonthlyRate        decimal.Decimal
	AnnualRate         decimal.Decimal
}

// Affordability holds payment guidelines derived from monthly income.
type Affordability struct {
	MaxAutoPayment decimal.Decimal
	MaxRent        decimal.Decimal
}

// ProjectionView is the rounded, client facing projection.
type ProjectionView struct {
	EffectiveStartDate string `json:"effectiveStartDate"`
	DaysWorked         int    `json:"daysWorked"`
	GrossDaily         int64  `json:"grossDaily"`
	GrossWeekly        int64  `json:"grossWeekly"`
	GrossMonthly       int64  `json:"grossMonthly"`
	GrossAnnual        int64  `json:"grossAnnual"`
	MaxAutoPayment     int64  `json:"maxAutoPayment"`
	MaxRent            int64  `json:"maxRent"`
}

// StreamSummary aggregates a list of income streams.
type StreamSummary struct {
	StreamCount         int                  `json:"streamCount"`
	TotalAnnual         int64                `json:"totalAnnual"`
	ReliableAnnual      int64                `json:"reliableAnnual"`
	TotalMonthly        int64                `json:"totalMonthly"`
	ReliableMonthly     int64                `json:"reliableMonthly"`
	ReliableAutoPayment int64                `json:"reliableMaxAutoPayment"`
	ReliableRent        int64                `json:"reliableMaxRent"`
	ByType              map[IncomeType]int64 `json:"byType"`
}
