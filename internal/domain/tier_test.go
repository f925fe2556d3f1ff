package domain

import "testing"

func TestCompareTiersTotalOrder(t *testing.T) {
	ordered := []ReportTier{TierFree, TierPro, TierPremium}

	for i, a := range ordered {
		for j, b := range ordered {
			got := CompareTiers(a, b)
			switch {
			case i < j && got >= 0:
				t.Fatalf("expected %s < %s, got %d", a, b, got)
			case i == j && got != 0:
				t.Fatalf("expected %s == %s, got %d", a, b, got)
			case i > j && got <= 0:
				t.Fatalf("expected %s > %s, got %d", a, b, got)
			}
			if CompareTiers(b, a) != -got {
				t.Fatalf("expected antisymmetry for %s/%s", a, b)
			}
		}
	}
}

func TestTierHasAccess(t *testing.T) {
	if !TierHasAccess(TierPremium, TierPro) {
		t.Fatal("expected premium to include pro access")
	}
	if TierHasAccess(TierFree, TierPro) {
		t.Fatal("expected free to lack pro access")
	}
	if !TierHasAccess(TierPro, TierPro) {
		t.Fatal("expected a tier to include itself")
	}
}

func TestParseReportTier(t *testing.T) {
	tests := []struct {
		input   string
		want    ReportTier
		wantErr bool
	}{
		{input: "pro", want: TierPro},
		{input: " Premium ", want: TierPremium},
		{input: "FREE", want: TierFree},
		{input: "gold", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseReportTier(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMonetizationFlagsMasterSwitch(t *testing.T) {
	flags := MonetizationFlags{ProReportEnabled: true, PremiumToolkitEnabled: true, ReferralUnlockEnabled: true}

	if flags.FeatureEnabled(flags.ReferralUnlockEnabled) {
		t.Fatal("expected features to be off while monetization is disabled")
	}
	if flags.TierPurchasable(TierPro) {
		t.Fatal("expected pro checkout to be off while monetization is disabled")
	}

	flags.MonetizationEnabled = true
	if !flags.TierPurchasable(TierPremium) {
		t.Fatal("expected premium checkout once monetization is enabled")
	}
	if flags.TierPurchasable(TierFree) {
		t.Fatal("free tier is never purchasable")
	}
}
