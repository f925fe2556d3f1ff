package income

import "github.com/shopspring/decimal"

// StabilityAssessment is the pro report income stability section.
type StabilityAssessment struct {
	Score       int    `json:"incomeStabilityScore"`
	Rating      string `json:"stabilityRating"`
	Explanation string `json:"stabilityExplanation"`
}

type incomeBand struct {
	min    int64
	points int
}

var annualIncomeBands = []incomeBand{
	{min: 150000, points: 20},
	{min: 100000, points: 15},
	{min: 75000, points: 10},
	{min: 50000, points: 5},
}

type daysBand struct {
	min    int
	points int
}

var daysWorkedBands = []daysBand{
	{min: 365, points: 15},
	{min: 180, points: 10},
	{min: 90, points: 5},
}

type stabilityLabel struct {
	min         int
	rating      string
	explanation string
}

var stabilityLabels = []stabilityLabel{
	{85, "Excellent", "Your income shows strong consistency and reliability. Lenders and landlords will view this favorably."},
	{70, "Good", "Your income appears stable with good earning potential. You're in a solid position for most financial applications."},
	{55, "Moderate", "Your income is in a reasonable range. Building a longer track record will improve your financial profile."},
	{40, "Developing", "Your income is establishing a pattern. Consider ways to increase consistency or add supplementary income."},
	{0, "Building", "Your income is in the early stages of establishing a track record. Focus on consistency and growth opportunities."},
}

// StabilityScore scores income stability from 0 to 100 using the income level
// and, when known, how many days back the figure. daysWorked of 0 means the
// figure was entered manually and the history factor is skipped.
func StabilityScore(annual decimal.Decimal, daysWorked int) int {
	score := 50

	scored := false
	for _, band := range annualIncomeBands {
		if annual.GreaterThanOrEqual(decimal.NewFromInt(band.min)) {
			score += band.points
			scored = true
			break
		}
	}
	if !scored && annual.LessThan(decimal.NewFromInt(30000)) {
		score -= 10
	}

	if daysWorked > 0 {
		scored = false
		for _, band := range daysWorkedBands {
			if daysWorked >= band.min {
				score += band.points
				scored = true
				break
			}
		}
		if !scored && daysWorked < 30 {
			score -= 10
		}
	}

	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// AssessStability scores an income figure and attaches its label.
func AssessStability(annual decimal.Decimal, daysWorked int) StabilityAssessment {
	score := StabilityScore(annual, daysWorked)
	label := stabilityLabels[len(stabilityLabels)-1]
	for _, candidate := range stabilityLabels {
		if score >= candidate.min {
			label = candidate
			break
		}
	}
	return StabilityAssessment{Score: score, Rating: label.rating, Explanation: label.explanation}
}
