package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/store"
	"github.com/autolytiq/income-service/pkg/rabbitmq"
	"github.com/autolytiq/income-service/pkg/stripeclient"
)

// Webhook event types handled by the checkout service.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

const checkoutSource = "income-calculator"

type product struct {
	name        string
	description string
}

var products = map[domain.ReportTier]product{
	domain.TierPro: {
		name:        "Pro Income Report",
		description: "Income Stability Score, Approval Readiness, 30-Day Action Plan, and more",
	},
	domain.TierPremium: {
		name:        "Premium Income Toolkit",
		description: "Everything in Pro plus multi-stream planning and lender-ready summaries",
	},
}

// CheckoutRequest starts a purchase of Tier for a report.
type CheckoutRequest struct {
	ReportID   string
	Email      string
	UserID     *string
	Tier       domain.ReportTier
	SuccessURL string
	CancelURL  string
}

// CheckoutResult points the browser at the hosted payment page.
type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CheckoutStatus is the purchase state reported on the success page.
type CheckoutStatus struct {
	Status   domain.PurchaseStatus `json:"status"`
	ReportID string                `json:"reportId"`
	Tier     domain.ReportTier     `json:"tier"`
}

// CheckoutService runs the purchase lifecycle.
type CheckoutService struct {
	purchases    PurchaseRepository
	entitlements *EntitlementService
	flags        FlagReader
	gateway      PaymentGateway
	publisher    Publisher
	exchange     string
	pricing      domain.PricingConfig
	appURL       string
	sessionTTL   time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// CheckoutConfig holds the static checkout settings.
type CheckoutConfig struct {
	Exchange   string
	Pricing    domain.PricingConfig
	AppURL     string
	SessionTTL time.Duration
}

// NewCheckoutService creates a new checkout service. gateway may be nil when
// no payment provider is configured.
func NewCheckoutService(
	purchases PurchaseRepository,
	entitlements *EntitlementService,
	flags FlagReader,
	gateway PaymentGateway,
	publisher Publisher,
	cfg CheckoutConfig,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		purchases:    purchases,
		entitlements: entitlements,
		flags:        flags,
		gateway:      gateway,
		publisher:    publisher,
		exchange:     cfg.Exchange,
		pricing:      cfg.Pricing,
		appURL:       strings.TrimRight(cfg.AppURL, "/"),
		sessionTTL:   cfg.SessionTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateCheckout checks the flags and eligibility, opens a payment session and
// records a pending purchase for it.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	flags := s.flags.Flags()
	if !flags.MonetizationEnabled {
		return nil, ErrMonetizationDisabled
	}
	if !flags.TierPurchasable(req.Tier) {
		return nil, ErrFeatureDisabled
	}

	reportID := strings.TrimSpace(req.ReportID)
	email := strings.TrimSpace(req.Email)
	if reportID == "" {
		return nil, fmt.Errorf("%w: reportId is required", ErrInvalidRequest)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: Valid email is required", ErrInvalidRequest)
	}

	eligibility, err := s.entitlements.ValidatePurchaseEligibility(ctx, reportID, req.Tier)
	if err != nil {
		s.logger.Error("eligibility check failed", zap.String("report_id", reportID), zap.Error(err))
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, &EligibilityError{Reason: eligibility.Reason}
	}

	if s.gateway == nil {
		s.logger.Error("checkout requested but no payment provider is configured", zap.String("report_id", reportID))
		return nil, ErrPaymentNotConfigured
	}

	amount, currency, ok := s.pricing.PriceFor(req.Tier)
	if !ok {
		return nil, fmt.Errorf("%w: tier %q is not for sale", ErrInvalidRequest, req.Tier)
	}
	item := products[req.Tier]

	session, err := s.gateway.CreateCheckoutSession(ctx, stripeclient.CheckoutSessionParams{
		ProductName:        item.name,
		ProductDescription: item.description,
		AmountCents:        amount,
		Currency:           currency,
		CustomerEmail:      email,
		SuccessURL:         s.redirectURL(req.SuccessURL, reportID, "success"),
		CancelURL:          s.redirectURL(req.CancelURL, reportID, "cancelled"),
		Metadata: map[string]string{
			"reportId": reportID,
			"tier":     string(req.Tier),
			"source":   checkoutSource,
		},
		ExpiresAt: s.now().Add(s.sessionTTL),
	})
	if err != nil {
		s.logger.Error("failed to create checkout session", zap.String("report_id", reportID), zap.String("tier", string(req.Tier)), zap.Error(err))
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	purchase := &domain.Purchase{
		UserID:      req.UserID,
		Email:       email,
		ReportID:    reportID,
		Tier:        req.Tier,
		AmountCents: amount,
		Currency:    currency,
		Provider:    domain.ProviderStripe,
		ProviderRef: session.ID,
		Status:      domain.PurchasePending,
	}
	if err := s.purchases.CreatePurchase(ctx, purchase); err != nil {
		s.logger.Error("failed to record pending purchase", zap.String("session_id", session.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	s.logger.Info("checkout session created",
		zap.String("report_id", reportID),
		zap.String("tier", string(req.Tier)),
		zap.String("session_id", session.ID),
		zap.String("purchase_id", purchase.ID),
	)
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CheckoutStatus looks a purchase up by its payment session id.
func (s *CheckoutService) CheckoutStatus(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	}
	purchase, err := s.purchases.FindPurchaseByProviderRef(ctx, domain.ProviderStripe, sessionID)
	if err != nil {
		return nil, err
	}
	return &CheckoutStatus{Status: purchase.Status, ReportID: purchase.ReportID, Tier: purchase.Tier}, nil
}

// HandleWebhookEvent applies a verified provider event. Events that carry
// nothing actionable are acknowledged without error so the provider stops
// retrying them.
func (s *CheckoutService) HandleWebhookEvent(ctx context.Context, event *stripeclient.Event) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.completeCheckout(ctx, event)
	case EventCheckoutExpired:
		return s.expireCheckout(ctx, event)
	case EventPaymentFailed:
		s.logger.Warn("payment failed", zap.String("event_id", event.ID))
		return nil
	default:
		s.logger.Debug("ignoring webhook event", zap.String("event_id", event.ID), zap.String("type", event.Type))
		return nil
	}
}

func (s *CheckoutService) completeCheckout(ctx context.Context, event *stripeclient.Event) error {
	session, err := stripeclient.DecodeCheckoutSession(event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	reportID := strings.TrimSpace(session.Metadata["reportId"])
	tier, tierErr := domain.ParseReportTier(session.Metadata["tier"])
	if reportID == "" || tierErr != nil {
		s.logger.Warn("checkout completed without usable metadata", zap.String("session_id", session.ID))
		return nil
	}

	purchase, err := s.purchases.FindPurchaseByProviderRef(ctx, domain.ProviderStripe, session.ID)
	switch {
	case errors.Is(err, store.ErrPurchaseNotFound):
		// The pending row was never written; record the paid purchase now so
		// the grant keeps its source.
		purchase, err = s.recordCompletedPurchase(ctx, session, reportID, tier)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to load purchase: %w", err)
	default:
		moved, err := s.purchases.TransitionPurchaseStatus(ctx, purchase.ID, domain.PurchaseCompleted,
			domain.PurchasePending, domain.PurchaseExpired, domain.PurchaseFailed)
		if err != nil {
			return fmt.Errorf("failed to complete purchase: %w", err)
		}
		if moved {
			purchase.Status = domain.PurchaseCompleted
			s.publishPurchase(ctx, rabbitmq.RoutingPurchaseCompleted, purchase)
		}
	}

	if _, err := s.entitlements.GrantEntitlement(ctx, reportID, tier, domain.GrantSource{PurchaseID: purchase.ID}); err != nil {
		return err
	}
	s.logger.Info("checkout completed", zap.String("report_id", reportID), zap.String("tier", string(tier)), zap.String("purchase_id", purchase.ID))
	return nil
}

func (s *CheckoutService) recordCompletedPurchase(ctx context.Context, session *stripeclient.CheckoutSession, reportID string, tier domain.ReportTier) (*domain.Purchase, error) {
	amount, currency, _ := s.pricing.PriceFor(tier)
	purchase := &domain.Purchase{
		Email:       session.CustomerEmail,
		ReportID:    reportID,
		Tier:        tier,
		AmountCents: amount,
		Currency:    currency,
		Provider:    domain.ProviderStripe,
		ProviderRef: session.ID,
		Status:      domain.PurchaseCompleted,
	}
	err := s.purchases.CreatePurchase(ctx, purchase)
	if errors.Is(err, store.ErrDuplicatePurchase) {
		return s.purchases.FindPurchaseByProviderRef(ctx, domain.ProviderStripe, session.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}
	s.logger.Warn("completed checkout had no pending purchase; recorded it", zap.String("session_id", session.ID))
	s.publishPurchase(ctx, rabbitmq.RoutingPurchaseCompleted, purchase)
	return purchase, nil
}

func (s *CheckoutService) expireCheckout(ctx context.Context, event *stripeclient.Event) error {
	session, err := stripeclient.DecodeCheckoutSession(event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	purchase, err := s.purchases.FindPurchaseByProviderRef(ctx, domain.ProviderStripe, session.ID)
	if errors.Is(err, store.ErrPurchaseNotFound) {
		s.logger.Info("expired session has no purchase", zap.String("session_id", session.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load purchase: %w", err)
	}

	moved, err := s.purchases.TransitionPurchaseStatus(ctx, purchase.ID, domain.PurchaseExpired, domain.PurchasePending)
	if err != nil {
		return fmt.Errorf("failed to expire purchase: %w", err)
	}
	if moved {
		purchase.Status = domain.PurchaseExpired
		s.publishPurchase(ctx, rabbitmq.RoutingPurchaseExpired, purchase)
		s.logger.Info("checkout session expired", zap.String("purchase_id", purchase.ID))
	}
	return nil
}

func (s *CheckoutService) publishPurchase(ctx context.Context, routingKey string, p *domain.Purchase) {
	event := domain.PurchaseStatusEvent{
		PurchaseID:  p.ID,
		ReportID:    p.ReportID,
		Tier:        p.Tier,
		Status:      p.Status,
		ProviderRef: p.ProviderRef,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, s.exchange, routingKey, event); err != nil {
		s.logger.Warn("failed to publish purchase event", zap.String("routing_key", routingKey), zap.String("purchase_id", p.ID), zap.Error(err))
	}
}

func (s *CheckoutService) redirectURL(override, reportID, outcome string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return fmt.Sprintf("%s/report/%s?upgrade=%s", s.appURL, url.PathEscape(reportID), outcome)
}
