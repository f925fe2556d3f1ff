package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/autolytiq/income-service/internal/domain"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"PORT", "SERVER_PORT", "PRO_REPORT_PRICE_CENTS", "PREMIUM_TOOLKIT_PRICE_CENTS",
		"REFERRAL_REWARD_THRESHOLD", "CHECKOUT_SESSION_TTL_MINUTES", "EVENTS_EXCHANGE", "AUTO_MIGRATE",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if !cfg.AutoMigrate {
		t.Fatal("expected auto migrate on by default")
	}
	if cfg.EventsExchange != "autolytiq.events" {
		t.Fatalf("expected default exchange, got %q", cfg.EventsExchange)
	}
	if cfg.ReferralRewardThreshold != 1 {
		t.Fatalf("expected referral threshold 1, got %d", cfg.ReferralRewardThreshold)
	}
	if cfg.CheckoutSessionTTL() != 30*time.Minute {
		t.Fatalf("expected 30m checkout ttl, got %s", cfg.CheckoutSessionTTL())
	}

	pricing := cfg.Pricing()
	if pricing.ProReportPriceCents != 999 || pricing.PremiumToolkitPriceCents != 2999 {
		t.Fatalf("unexpected default pricing: %+v", pricing)
	}
	if pricing.ProReportCurrency != "usd" || pricing.PremiumToolkitCurrency != "usd" {
		t.Fatalf("unexpected default currencies: %+v", pricing)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CoercesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("REFERRAL_REWARD_THRESHOLD", "0")
	t.Setenv("CHECKOUT_SESSION_TTL_MINUTES", "5")
	t.Setenv("CHECKOUT_RATE_LIMIT_PER_MINUTE", "-3")
	t.Setenv("PRO_REPORT_CURRENCY", " EUR ")
	t.Setenv("APP_URL", "https://example.com/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ReferralRewardThreshold != 1 {
		t.Fatalf("expected threshold coerced to 1, got %d", cfg.ReferralRewardThreshold)
	}
	if cfg.CheckoutSessionTTLMinutes != 30 {
		t.Fatalf("expected ttl raised to 30, got %d", cfg.CheckoutSessionTTLMinutes)
	}
	if cfg.CheckoutRateLimitPerMinute != 10 {
		t.Fatalf("expected checkout rate limit default, got %d", cfg.CheckoutRateLimitPerMinute)
	}
	if cfg.ProReportCurrency != "eur" {
		t.Fatalf("expected normalized currency, got %q", cfg.ProReportCurrency)
	}
	if cfg.AppURL != "https://example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.AppURL)
	}
}

func TestValidatePricing(t *testing.T) {
	valid := domain.PricingConfig{
		ProReportPriceCents:      999,
		ProReportCurrency:        "usd",
		PremiumToolkitPriceCents: 2999,
		PremiumToolkitCurrency:   "gbp",
	}
	if problems := ValidatePricing(valid); len(problems) != 0 {
		t.Fatalf("expected valid pricing, got %v", problems)
	}

	tests := []struct {
		name   string
		mutate func(*domain.PricingConfig)
	}{
		{"too low", func(p *domain.PricingConfig) { p.ProReportPriceCents = 50 }},
		{"too high", func(p *domain.PricingConfig) { p.PremiumToolkitPriceCents = 10000 }},
		{"unknown currency", func(p *domain.PricingConfig) { p.ProReportCurrency = "xyz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if problems := ValidatePricing(p); len(problems) != 1 {
				t.Fatalf("expected exactly one problem, got %v", problems)
			}
		})
	}
}

func TestFlagSourceReadsFreshValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.AutomaticEnv()

	flags := NewFlagSource()
	unsetEnvWithCleanup(t, "MONETIZATION_ENABLED")
	unsetEnvWithCleanup(t, "PRO_REPORT_ENABLED")

	if flags.Flags().MonetizationEnabled {
		t.Fatal("expected monetization off by default")
	}

	t.Setenv("MONETIZATION_ENABLED", "true")
	t.Setenv("PRO_REPORT_ENABLED", "true")
	got := flags.Flags()
	if !got.MonetizationEnabled || !got.ProReportEnabled {
		t.Fatalf("expected flags to follow the environment, got %+v", got)
	}
	if got.PremiumToolkitEnabled {
		t.Fatal("expected unset flags to stay off")
	}
}

func TestFlagSourceRequiresExactTrue(t *testing.T) {
	for _, value := range []string{"1", "yes", "TRUE ", "on"} {
		v := viper.New()
		v.Set("MONETIZATION_ENABLED", value)
		if NewFlagSourceFrom(v).Flags().MonetizationEnabled {
			t.Fatalf("expected %q to leave monetization off", value)
		}
	}

	v := viper.New()
	v.Set("MONETIZATION_ENABLED", "true")
	if !NewFlagSourceFrom(v).Flags().MonetizationEnabled {
		t.Fatal("expected \"true\" to switch monetization on")
	}
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
