/**
 * @description
 * Business logic for the income-service. The services here sit between the
 * HTTP handlers and the PostgreSQL repository and own every monetization
 * decision: which tier a report holds, whether a checkout may start, how a
 * referral converts into a reward.
 *
 * Key features:
 * - Resolves entitlements from a fresh read of the monetization flags on every call.
 * - Serializes grants per report through the repository and publishes domain events.
 * - Drives the purchase lifecycle from checkout creation to the provider webhook.
 *
 * @dependencies
 * - internal/domain, internal/store: domain models and data access.
 * - pkg/rabbitmq, pkg/stripeclient: event publishing and the payment provider.
 * - go.uber.org/zap: structured logging.
 */
package app

import (
	"context"
	"errors"
	"time"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/pkg/stripeclient"
)

var (
	ErrMonetizationDisabled   = errors.New("monetization is not enabled")
	ErrFeatureDisabled        = errors.New("feature is not available")
	ErrNotEligible            = errors.New("report is not eligible for this purchase")
	ErrPaymentNotConfigured   = errors.New("payment system not configured")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrSelfReferral           = errors.New("cannot refer yourself")
	ErrDuplicateReferral      = errors.New("referral already tracked")
	ErrEntitlementUnavailable = errors.New("entitlement could not be resolved")
)

// EligibilityError carries the reason a purchase was refused.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string { return e.Reason }

func (e *EligibilityError) Is(target error) bool { return target == ErrNotEligible }

// EntitlementRepository is the entitlement slice of the store.
type EntitlementRepository interface {
	HighestEntitlement(ctx context.Context, reportID string) (*domain.Entitlement, error)
	GrantEntitlement(ctx context.Context, reportID string, tier domain.ReportTier, source domain.GrantSource) (*domain.Entitlement, bool, error)
}

// PurchaseRepository is the purchase slice of the store.
type PurchaseRepository interface {
	CreatePurchase(ctx context.Context, purchase *domain.Purchase) error
	FindPurchaseByProviderRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Purchase, error)
	ListCompletedPurchaseTiers(ctx context.Context, reportID string) ([]domain.ReportTier, error)
	HasPendingOrCompletedPurchase(ctx context.Context, reportID string, tier domain.ReportTier) (bool, error)
	TransitionPurchaseStatus(ctx context.Context, id string, status domain.PurchaseStatus, from ...domain.PurchaseStatus) (bool, error)
	ExpireStalePendingPurchases(ctx context.Context, cutoff time.Time) ([]domain.Purchase, error)
}

// ReferralRepository is the referral slice of the store.
type ReferralRepository interface {
	CreateReferral(ctx context.Context, referral domain.Referral) (*domain.Referral, bool, error)
	FindReferralByCode(ctx context.Context, code string) (*domain.Referral, error)
	FindReferralByReportID(ctx context.Context, reportID string) (*domain.Referral, error)
	IsDuplicateReferral(ctx context.Context, code, newReportID string, fingerprintHash *string, since time.Time) (bool, error)
	RecordReferralEvent(ctx context.Context, event domain.ReferralEvent) (*domain.Referral, error)
	MarkReferralRewardGranted(ctx context.Context, referralID string) (bool, error)
}

// FlagReader returns the current monetization flags. Implementations must
// not cache: flags can change between two calls.
type FlagReader interface {
	Flags() domain.MonetizationFlags
}

// PaymentGateway opens hosted checkout pages.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params stripeclient.CheckoutSessionParams) (*stripeclient.CheckoutSession, error)
}

// Publisher matches rabbitmq.Publisher without the Close method.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}
