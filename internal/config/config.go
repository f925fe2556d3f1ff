/**
 * @description
 * This package handles the configuration management for the income-service. It
 * uses Viper to read configuration from environment variables and an optional
 * .env file. Monetization flags are the exception: they are read on every call
 * through FlagSource so they can be flipped without a restart.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/autolytiq/income-service/internal/domain"
)

const (
	defaultRateLimitPrefix  = "autolytiq:rate_limit"
	defaultEventsExchange   = "autolytiq.events"
	defaultExpirySchedule   = "@every 15m"
	defaultCheckoutTTL      = 30
	defaultRewardThreshold  = 1
	defaultCheckoutPerMin   = 10
	defaultReferralPerMin   = 20
	defaultProPriceCents    = 999
	defaultPremiumPriceCent = 2999
	defaultCurrency         = "usd"
)

// Config holds all the configuration variables for the income-service.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	AutoMigrate                bool   `mapstructure:"AUTO_MIGRATE"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	EventsExchange             string `mapstructure:"EVENTS_EXCHANGE"`
	InternalAPIKey             string `mapstructure:"INTERNAL_API_KEY"`
	AuthJWTSecret              string `mapstructure:"AUTH_JWT_SECRET"`
	StripeSecretKey            string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret        string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIBaseURL           string `mapstructure:"STRIPE_API_BASE_URL"`
	AppURL                     string `mapstructure:"APP_URL"`
	ProReportPriceCents        int64  `mapstructure:"PRO_REPORT_PRICE_CENTS"`
	ProReportCurrency          string `mapstructure:"PRO_REPORT_CURRENCY"`
	PremiumToolkitPriceCents   int64  `mapstructure:"PREMIUM_TOOLKIT_PRICE_CENTS"`
	PremiumToolkitCurrency     string `mapstructure:"PREMIUM_TOOLKIT_CURRENCY"`
	ReferralRewardThreshold    int    `mapstructure:"REFERRAL_REWARD_THRESHOLD"`
	CheckoutSessionTTLMinutes  int    `mapstructure:"CHECKOUT_SESSION_TTL_MINUTES"`
	PurchaseExpiryJobSchedule  string `mapstructure:"PURCHASE_EXPIRY_JOB_SCHEDULE"`
	CheckoutRateLimitPerMinute int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
	ReferralRateLimitPerMinute int    `mapstructure:"REFERRAL_RATE_LIMIT_PER_MINUTE"`
	LogLevel                   string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AUTO_MIGRATE", true)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("APP_URL", "https://autolytiqs.com")
	viper.SetDefault("PRO_REPORT_PRICE_CENTS", defaultProPriceCents)
	viper.SetDefault("PRO_REPORT_CURRENCY", defaultCurrency)
	viper.SetDefault("PREMIUM_TOOLKIT_PRICE_CENTS", defaultPremiumPriceCent)
	viper.SetDefault("PREMIUM_TOOLKIT_CURRENCY", defaultCurrency)
	viper.SetDefault("REFERRAL_REWARD_THRESHOLD", defaultRewardThreshold)
	viper.SetDefault("CHECKOUT_SESSION_TTL_MINUTES", defaultCheckoutTTL)
	viper.SetDefault("PURCHASE_EXPIRY_JOB_SCHEDULE", defaultExpirySchedule)
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", defaultCheckoutPerMin)
	viper.SetDefault("REFERRAL_RATE_LIMIT_PER_MINUTE", defaultReferralPerMin)
	viper.SetDefault("LOG_LEVEL", "info")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("AUTH_JWT_SECRET")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("APP_URL")
	_ = viper.BindEnv("PRO_REPORT_PRICE_CENTS")
	_ = viper.BindEnv("PRO_REPORT_CURRENCY")
	_ = viper.BindEnv("PREMIUM_TOOLKIT_PRICE_CENTS")
	_ = viper.BindEnv("PREMIUM_TOOLKIT_CURRENCY")
	_ = viper.BindEnv("REFERRAL_REWARD_THRESHOLD")
	_ = viper.BindEnv("CHECKOUT_SESSION_TTL_MINUTES")
	_ = viper.BindEnv("PURCHASE_EXPIRY_JOB_SCHEDULE")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REFERRAL_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("LOG_LEVEL")
	for _, key := range flagKeys {
		_ = viper.BindEnv(key)
	}

	// It's okay if the config file doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = defaultEventsExchange
	}
	config.AppURL = strings.TrimRight(strings.TrimSpace(config.AppURL), "/")
	config.ProReportCurrency = strings.ToLower(strings.TrimSpace(config.ProReportCurrency))
	config.PremiumToolkitCurrency = strings.ToLower(strings.TrimSpace(config.PremiumToolkitCurrency))

	if config.ReferralRewardThreshold <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive referral reward threshold; using default\" threshold=%d", config.ReferralRewardThreshold)
		config.ReferralRewardThreshold = defaultRewardThreshold
	}
	if config.CheckoutSessionTTLMinutes <= 0 {
		config.CheckoutSessionTTLMinutes = defaultCheckoutTTL
	}
	// Stripe refuses checkout sessions expiring sooner than 30 minutes.
	if config.CheckoutSessionTTLMinutes < 30 {
		log.Printf("level=warn component=config msg=\"checkout session ttl below provider minimum; raising to 30\" ttl_minutes=%d", config.CheckoutSessionTTLMinutes)
		config.CheckoutSessionTTLMinutes = 30
	}
	if strings.TrimSpace(config.PurchaseExpiryJobSchedule) == "" {
		config.PurchaseExpiryJobSchedule = defaultExpirySchedule
	}
	if config.CheckoutRateLimitPerMinute <= 0 {
		config.CheckoutRateLimitPerMinute = defaultCheckoutPerMin
	}
	if config.ReferralRateLimitPerMinute <= 0 {
		config.ReferralRateLimitPerMinute = defaultReferralPerMin
	}

	if problems := ValidatePricing(config.Pricing()); len(problems) > 0 {
		for _, problem := range problems {
			log.Printf("level=warn component=config msg=\"invalid pricing configuration\" problem=%q", problem)
		}
	}

	return
}

// CheckoutSessionTTL is how long a checkout session stays payable.
func (c Config) CheckoutSessionTTL() time.Duration {
	return time.Duration(c.CheckoutSessionTTLMinutes) * time.Minute
}

// Pricing returns the configured tier prices.
func (c Config) Pricing() domain.PricingConfig {
	return domain.PricingConfig{
		ProReportPriceCents:      c.ProReportPriceCents,
		ProReportCurrency:        c.ProReportCurrency,
		PremiumToolkitPriceCents: c.PremiumToolkitPriceCents,
		PremiumToolkitCurrency:   c.PremiumToolkitCurrency,
	}
}

const (
	minPriceCents = 99
	maxPriceCents = 9999
)

var supportedCurrencies = map[string]struct{}{
	"usd": {},
	"eur": {},
	"gbp": {},
}

// ValidatePricing lists every pricing misconfiguration. An empty result means
// the pricing is safe to charge.
func ValidatePricing(p domain.PricingConfig) []string {
	var problems []string
	check := func(label string, cents int64, currency string) {
		if cents < minPriceCents {
			problems = append(problems, fmt.Sprintf("%s price too low (min %d cents)", label, minPriceCents))
		}
		if cents > maxPriceCents {
			problems = append(problems, fmt.Sprintf("%s price too high (max %d cents)", label, maxPriceCents))
		}
		if _, ok := supportedCurrencies[currency]; !ok {
			problems = append(problems, fmt.Sprintf("invalid currency %q for %s", currency, label))
		}
	}
	check("pro report", p.ProReportPriceCents, p.ProReportCurrency)
	check("premium toolkit", p.PremiumToolkitPriceCents, p.PremiumToolkitCurrency)
	return problems
}
