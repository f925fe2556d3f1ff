package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/autolytiq/income-service/internal/domain"
)

const (
	keyMonetizationEnabled   = "MONETIZATION_ENABLED"
	keyProReportEnabled      = "PRO_REPORT_ENABLED"
	keyPremiumToolkitEnabled = "PREMIUM_TOOLKIT_ENABLED"
	keyAffiliateBlockEnabled = "AFFILIATE_BLOCK_ENABLED"
	keyReferralUnlockEnabled = "REFERRAL_UNLOCK_ENABLED"
	keyB2BInquiryEnabled     = "B2B_INQUIRY_ENABLED"
)

var flagKeys = []string{
	keyMonetizationEnabled,
	keyProReportEnabled,
	keyPremiumToolkitEnabled,
	keyAffiliateBlockEnabled,
	keyReferralUnlockEnabled,
	keyB2BInquiryEnabled,
}

// FlagSource reads monetization flags on every call. Only the exact value
// "true" switches a flag on; anything else, including "1" or "yes", is off.
type FlagSource struct {
	v *viper.Viper
}

// NewFlagSource reads flags through the global viper instance.
func NewFlagSource() *FlagSource {
	return &FlagSource{}
}

// NewFlagSourceFrom reads flags through v. Used by tests to avoid global state.
func NewFlagSourceFrom(v *viper.Viper) *FlagSource {
	return &FlagSource{v: v}
}

// Flags returns the current flag values.
func (s *FlagSource) Flags() domain.MonetizationFlags {
	return domain.MonetizationFlags{
		MonetizationEnabled:   s.enabled(keyMonetizationEnabled),
		ProReportEnabled:      s.enabled(keyProReportEnabled),
		PremiumToolkitEnabled: s.enabled(keyPremiumToolkitEnabled),
		AffiliateBlockEnabled: s.enabled(keyAffiliateBlockEnabled),
		ReferralUnlockEnabled: s.enabled(keyReferralUnlockEnabled),
		B2BInquiryEnabled:     s.enabled(keyB2BInquiryEnabled),
	}
}

func (s *FlagSource) enabled(key string) bool {
	var raw string
	if s.v != nil {
		raw = s.v.GetString(key)
	} else {
		raw = viper.GetString(key)
	}
	return strings.TrimSpace(raw) == "true"
}
