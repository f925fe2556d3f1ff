/**
 * @description
 * Domain models for report monetization: purchases, entitlements, referrals
 * and the resolver output shapes.
 */
package domain

import "time"

// PurchaseStatus tracks a checkout through the payment provider.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
	PurchaseExpired   PurchaseStatus = "expired"
)

// PaymentProvider identifies where a purchase was paid.
type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderManual PaymentProvider = "manual"
)

// Entitlement grants a report access to a tier. Rows are append-only.
type Entitlement struct {
	ID               string     `json:"id"`
	ReportID         string     `json:"report_id"`
	Tier             ReportTier `json:"tier"`
	SourcePurchaseID *string    `json:"source_purchase_id,omitempty"`
	SourceReferralID *string    `json:"source_referral_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Purchase is a payment record for a report tier.
type Purchase struct {
	ID          string          `json:"id"`
	UserID      *string         `json:"user_id,omitempty"`
	Email       string          `json:"email"`
	ReportID    string          `json:"report_id"`
	Tier        ReportTier      `json:"tier"`
	AmountCents int64           `json:"amount_cents"`
	Currency    string          `json:"currency"`
	Provider    PaymentProvider `json:"provider"`
	ProviderRef string          `json:"provider_ref"`
	Status      PurchaseStatus  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Referral is the referral code owned by a report and its conversion counter.
type Referral struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	OwnerReportID string    `json:"owner_report_id"`
	OwnerUserID   *string   `json:"owner_user_id,omitempty"`
	OwnerEmail    string    `json:"owner_email"`
	Count         int       `json:"count"`
	RewardGranted bool      `json:"reward_granted"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReferralEvent is one tracked conversion of a referral code.
type ReferralEvent struct {
	ID              string    `json:"id"`
	ReferralID      string    `json:"referral_id"`
	Code            string    `json:"code"`
	NewReportID     string    `json:"new_report_id"`
	FingerprintHash *string   `json:"fingerprint_hash,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// EntitlementSource explains where the resolved tier came from.
type EntitlementSource string

const (
	SourcePurchase EntitlementSource = "purchase"
	SourceReferral EntitlementSource = "referral"
	SourceManual   EntitlementSource = "manual"
	SourceDefault  EntitlementSource = "default"
)

// Entitlements are the feature flags derived from a tier.
type Entitlements struct {
	HasProReport      bool    `json:"has_pro_report"`
	HasPremiumToolkit bool    `json:"has_premium_toolkit"`
	CanUpgrade        bool    `json:"can_upgrade"`
	ReferralCode      *string `json:"referral_code"`
	ReferralCount     int     `json:"referral_count"`
}

// EntitlementResult is the full server-side access decision for a report.
type EntitlementResult struct {
	Tier         ReportTier        `json:"tier"`
	Entitlements Entitlements      `json:"entitlements"`
	Source       EntitlementSource `json:"source"`
}

// ClientEntitlement is the subset of EntitlementResult that is safe to send
// to browsers. Referral counts and sources stay server side.
type ClientEntitlement struct {
	Tier              ReportTier `json:"tier"`
	HasProReport      bool       `json:"hasProReport"`
	HasPremiumToolkit bool       `json:"hasPremiumToolkit"`
	CanUpgrade        bool       `json:"canUpgrade"`
	ReferralCode      *string    `json:"referralCode"`
}

// GrantSource references the purchase or referral that produced a grant.
// Both empty means a manual grant.
type GrantSource struct {
	PurchaseID string `json:"purchase_id,omitempty"`
	ReferralID string `json:"referral_id,omitempty"`
}

// Eligibility is the outcome of a purchase pre-check.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// MonetizationFlags toggles the monetization features. All default to off.
type MonetizationFlags struct {
	MonetizationEnabled   bool `json:"monetizationEnabled"`
	ProReportEnabled      bool `json:"proReportEnabled"`
	PremiumToolkitEnabled bool `json:"premiumToolkitEnabled"`
	AffiliateBlockEnabled bool `json:"affiliateBlockEnabled"`
	ReferralUnlockEnabled bool `json:"referralUnlockEnabled"`
	B2BInquiryEnabled     bool `json:"b2bInquiryEnabled"`
}

// FeatureEnabled applies the master switch: no feature is on while
// monetization itself is off.
func (f MonetizationFlags) FeatureEnabled(feature bool) bool {
	return f.MonetizationEnabled && feature
}

// TierPurchasable reports whether checkout for tier is switched on.
func (f MonetizationFlags) TierPurchasable(tier ReportTier) bool {
	if !f.MonetizationEnabled {
		return false
	}
	switch tier {
	case TierPro:
		return f.ProReportEnabled
	case TierPremium:
		return f.PremiumToolkitEnabled
	default:
		return false
	}
}

// PricingConfig holds tier prices in minor currency units.
type PricingConfig struct {
	ProReportPriceCents      int64  `json:"pro_report_price_cents"`
	ProReportCurrency        string `json:"pro_report_currency"`
	PremiumToolkitPriceCents int64  `json:"premium_toolkit_price_cents"`
	PremiumToolkitCurrency   string `json:"premium_toolkit_currency"`
}

// PriceFor returns the amount and currency charged for tier.
func (p PricingConfig) PriceFor(tier ReportTier) (int64, string, bool) {
	switch tier {
	case TierPro:
		return p.ProReportPriceCents, p.ProReportCurrency, true
	case TierPremium:
		return p.PremiumToolkitPriceCents, p.PremiumToolkitCurrency, true
	default:
		return 0, "", false
	}
}
