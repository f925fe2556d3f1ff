/**
 * @description
 * Report tiers and the single ordering used to compare them.
 */
package domain

import (
	"fmt"
	"strings"
)

// ReportTier is an access level for report content.
type ReportTier string

const (
	TierFree    ReportTier = "FREE"
	TierPro     ReportTier = "PRO"
	TierPremium ReportTier = "PREMIUM"
)

var tierOrder = map[ReportTier]int{
	TierFree:    0,
	TierPro:     1,
	TierPremium: 2,
}

// Valid reports whether t is one of the known tiers.
func (t ReportTier) Valid() bool {
	_, ok := tierOrder[t]
	return ok
}

// CompareTiers returns a negative number when a < b, zero when equal and a
// positive number when a > b. Tiers must never be compared by identity.
func CompareTiers(a, b ReportTier) int {
	return tierOrder[a] - tierOrder[b]
}

// TierHasAccess reports whether a holder of userTier may see requiredTier content.
func TierHasAccess(userTier, requiredTier ReportTier) bool {
	return CompareTiers(userTier, requiredTier) >= 0
}

// ParseReportTier normalizes user supplied tier names ("pro", " Premium ").
func ParseReportTier(raw string) (ReportTier, error) {
	tier := ReportTier(strings.ToUpper(strings.TrimSpace(raw)))
	if !tier.Valid() {
		return "", fmt.Errorf("unknown report tier %q", raw)
	}
	return tier, nil
}
