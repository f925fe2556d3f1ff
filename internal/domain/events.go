package domain

import "time"

// EntitlementGrantedEvent is published after a new entitlement row is written.
type EntitlementGrantedEvent struct {
	EntitlementID string     `json:"entitlement_id"`
	ReportID      string     `json:"report_id"`
	Tier          ReportTier `json:"tier"`
	PurchaseID    string     `json:"purchase_id,omitempty"`
	ReferralID    string     `json:"referral_id,omitempty"`
	GrantedAt     time.Time  `json:"granted_at"`
}

// PurchaseStatusEvent is published when a purchase completes or expires.
type PurchaseStatusEvent struct {
	PurchaseID  string         `json:"purchase_id"`
	ReportID    string         `json:"report_id"`
	Tier        ReportTier     `json:"tier"`
	Status      PurchaseStatus `json:"status"`
	ProviderRef string         `json:"provider_ref"`
	AmountCents int64          `json:"amount_cents"`
	Currency    string         `json:"currency"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// ReferralRewardEvent is published once a referral owner earns the reward.
type ReferralRewardEvent struct {
	ReferralID    string     `json:"referral_id"`
	OwnerReportID string     `json:"owner_report_id"`
	Code          string     `json:"code"`
	Count         int        `json:"count"`
	Tier          ReportTier `json:"tier"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
