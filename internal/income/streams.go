package income

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/autolytiq/income-service/internal/domain"
)

var periodsPerYear = map[domain.Frequency]int64{
	domain.FrequencyWeekly:   52,
	domain.FrequencyBiweekly: 26,
	domain.FrequencyMonthly:  12,
	domain.FrequencyAnnually: 1,
}

// StabilityWeights maps a stability rating to the share of a stream's income
// that counts as reliable.
type StabilityWeights map[domain.StabilityRating]decimal.Decimal

// DefaultStabilityWeights discounts variable income without discarding it.
var DefaultStabilityWeights = StabilityWeights{
	1: decimal.RequireFromString("0.50"),
	2: decimal.RequireFromString("0.65"),
	3: decimal.RequireFromString("0.80"),
	4: decimal.RequireFromString("0.90"),
	5: decimal.NewFromInt(1),
}

// NewStabilityWeights validates a custom weight table. Every rating needs a
// weight in (0, 1], weights strictly increase with the rating, and rating 5
// must be exactly 1.
func NewStabilityWeights(weights map[domain.StabilityRating]decimal.Decimal) (StabilityWeights, error) {
	one := decimal.NewFromInt(1)
	previous := decimal.Zero

	for r := domain.MinStabilityRating; r <= domain.MaxStabilityRating; r++ {
		w, ok := weights[r]
		if !ok {
			return nil, fmt.Errorf("missing stability weight for rating %d", r)
		}
		if !w.IsPositive() || w.GreaterThan(one) {
			return nil, fmt.Errorf("stability weight for rating %d must be in (0, 1], got %s", r, w)
		}
		if !w.GreaterThan(previous) {
			return nil, fmt.Errorf("stability weight for rating %d must exceed the weight for rating %d", r, r-1)
		}
		previous = w
	}
	if !weights[domain.MaxStabilityRating].Equal(one) {
		return nil, fmt.Errorf("stability weight for rating %d must be 1", domain.MaxStabilityRating)
	}

	out := make(StabilityWeights, len(weights))
	for r, w := range weights {
		out[r] = w
	}
	return out, nil
}

// Weight returns the multiplier for rating.
func (w StabilityWeights) Weight(rating domain.StabilityRating) (decimal.Decimal, error) {
	weight, ok := w[rating]
	if !ok || !rating.Valid() {
		return decimal.Decimal{}, fmt.Errorf("%w: stability rating %d is outside 1-5", ErrInvalidStream, rating)
	}
	return weight, nil
}

// ReliableIncome sums each stream's annual amount discounted by its weight.
func (w StabilityWeights) ReliableIncome(streams []domain.IncomeStream) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, stream := range streams {
		annual, err := ToAnnual(stream.Amount, stream.Frequency)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("stream %q: %w", stream.ID, err)
		}
		weight, err := w.Weight(stream.StabilityRating)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("stream %q: %w", stream.ID, err)
		}
		total = total.Add(annual.Mul(weight))
	}
	return total, nil
}

// ToAnnual converts a per-period amount into a yearly amount.
func ToAnnual(amount decimal.Decimal, frequency domain.Frequency) (decimal.Decimal, error) {
	periods, ok := periodsPerYear[frequency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, frequency)
	}
	return amount.Mul(decimal.NewFromInt(periods)), nil
}

// FromAnnual converts a yearly amount into a per-period amount.
func FromAnnual(annual decimal.Decimal, frequency domain.Frequency) (decimal.Decimal, error) {
	periods, ok := periodsPerYear[frequency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, frequency)
	}
	return annual.Div(decimal.NewFromInt(periods)), nil
}

// CalculateTotalAnnual sums the annualized amount of every stream. No streams
// means zero income, not an error.
func CalculateTotalAnnual(streams []domain.IncomeStream) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, stream := range streams {
		annual, err := ToAnnual(stream.Amount, stream.Frequency)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("stream %q: %w", stream.ID, err)
		}
		total = total.Add(annual)
	}
	return total, nil
}

// CalculateReliableIncome weights streams with DefaultStabilityWeights.
func CalculateReliableIncome(streams []domain.IncomeStream) (decimal.Decimal, error) {
	return DefaultStabilityWeights.ReliableIncome(streams)
}

// IncomeByType groups annualized income by stream type. Every type is present.
func IncomeByType(streams []domain.IncomeStream) (map[domain.IncomeType]decimal.Decimal, error) {
	byType := make(map[domain.IncomeType]decimal.Decimal, len(domain.IncomeTypes))
	for _, t := range domain.IncomeTypes {
		byType[t] = decimal.Zero
	}

	for _, stream := range streams {
		annual, err := ToAnnual(stream.Amount, stream.Frequency)
		if err != nil {
			return nil, fmt.Errorf("stream %q: %w", stream.ID, err)
		}
		if !stream.Type.Valid() {
			return nil, fmt.Errorf("%w: stream %q has unknown type %q", ErrInvalidStream, stream.ID, stream.Type)
		}
		byType[stream.Type] = byType[stream.Type].Add(annual)
	}
	return byType, nil
}

// SuggestedStability is the default rating offered for a new stream.
func SuggestedStability(t domain.IncomeType) domain.StabilityRating {
	switch t {
	case domain.IncomeSalaried:
		return 5
	case domain.IncomeRental:
		return 4
	case domain.IncomeSideHustle, domain.IncomeGig:
		return 2
	default:
		return 3
	}
}

// ValidateStream checks the stream invariants. A bad frequency surfaces as
// ErrUnknownFrequency; anything else as ErrInvalidStream.
func ValidateStream(stream domain.IncomeStream) error {
	if strings.TrimSpace(stream.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidStream)
	}
	if _, ok := periodsPerYear[stream.Frequency]; !ok {
		return fmt.Errorf("stream %q: %w: %q", stream.ID, ErrUnknownFrequency, stream.Frequency)
	}
	if !stream.Amount.IsPositive() {
		return fmt.Errorf("%w: stream %q amount must be greater than 0", ErrInvalidStream, stream.ID)
	}
	if !stream.Type.Valid() {
		return fmt.Errorf("%w: stream %q has unknown type %q", ErrInvalidStream, stream.ID, stream.Type)
	}
	if !stream.StabilityRating.Valid() {
		return fmt.Errorf("%w: stream %q stability rating %d is outside 1-5", ErrInvalidStream, stream.ID, stream.StabilityRating)
	}
	return nil
}

// ValidateStreams validates each stream and rejects duplicate ids.
func ValidateStreams(streams []domain.IncomeStream) error {
	seen := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		if err := ValidateStream(stream); err != nil {
			return err
		}
		if _, dup := seen[stream.ID]; dup {
			return fmt.Errorf("%w: duplicate stream id %q", ErrInvalidStream, stream.ID)
		}
		seen[stream.ID] = struct{}{}
	}
	return nil
}

// Summarize validates streams and produces the rounded client summary. The
// affordability figures use reliable income only.
func Summarize(streams []domain.IncomeStream, weights StabilityWeights) (domain.StreamSummary, error) {
	if err := ValidateStreams(streams); err != nil {
		return domain.StreamSummary{}, err
	}

	total, err := CalculateTotalAnnual(streams)
	if err != nil {
		return domain.StreamSummary{}, err
	}
	reliable, err := weights.ReliableIncome(streams)
	if err != nil {
		return domain.StreamSummary{}, err
	}
	byType, err := IncomeByType(streams)
	if err != nil {
		return domain.StreamSummary{}, err
	}

	reliableMonthly := reliable.Div(monthsPerYear)
	afford := DeriveAffordability(reliableMonthly)

	summary := domain.StreamSummary{
		StreamCount:         len(streams),
		TotalAnnual:         wholeUnits(total),
		ReliableAnnual:      wholeUnits(reliable),
		TotalMonthly:        wholeUnits(total.Div(monthsPerYear)),
		ReliableMonthly:     wholeUnits(reliableMonthly),
		ReliableAutoPayment: wholeUnits(afford.MaxAutoPayment),
		ReliableRent:        wholeUnits(afford.MaxRent),
		ByType:              make(map[domain.IncomeType]int64, len(byType)),
	}
	for t, amount := range byType {
		summary.ByType[t] = wholeUnits(amount)
	}
	return summary, nil
}

// StreamFromProjection expresses a calculator projection as a salaried,
// fully reliable annual stream so combined figures are always computed over
// one stream list.
func StreamFromProjection(id, name string, result domain.ProjectionResult) domain.IncomeStream {
	return domain.IncomeStream{
		ID:              id,
		Name:            name,
		Type:            domain.IncomeSalaried,
		Amount:          result.AnnualRate,
		Frequency:       domain.FrequencyAnnually,
		StabilityRating: domain.MaxStabilityRating,
	}
}
