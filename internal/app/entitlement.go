package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/store"
	"github.com/autolytiq/income-service/pkg/rabbitmq"
)

const (
	reasonTierHeld        = "Report already has this tier or higher"
	reasonPurchaseOngoing = "Purchase already in progress or completed"
)

// ResolveInput identifies the report being resolved. UserID and Email are
// optional and only used for logging today.
type ResolveInput struct {
	ReportID string
	UserID   *string
	Email    *string
}

// EntitlementService decides which tier a report holds.
type EntitlementService struct {
	entitlements EntitlementRepository
	purchases    PurchaseRepository
	referrals    ReferralRepository
	flags        FlagReader
	publisher    Publisher
	exchange     string
	logger       *zap.Logger
	now          func() time.Time
}

// NewEntitlementService creates a new entitlement service.
func NewEntitlementService(
	entitlements EntitlementRepository,
	purchases PurchaseRepository,
	referrals ReferralRepository,
	flags FlagReader,
	publisher Publisher,
	exchange string,
	logger *zap.Logger,
) *EntitlementService {
	return &EntitlementService{
		entitlements: entitlements,
		purchases:    purchases,
		referrals:    referrals,
		flags:        flags,
		publisher:    publisher,
		exchange:     exchange,
		logger:       logger,
		now:          time.Now,
	}
}

// ResolveEntitlement returns the full access decision for a report. Store
// failures are returned as errors; the caller must never fall back to a
// guessed tier.
func (s *EntitlementService) ResolveEntitlement(ctx context.Context, in ResolveInput) (*domain.EntitlementResult, error) {
	flags := s.flags.Flags()
	if !flags.MonetizationEnabled {
		return freeResult(), nil
	}

	reportID := strings.TrimSpace(in.ReportID)
	if reportID == "" {
		return nil, fmt.Errorf("%w: reportId is required", ErrInvalidRequest)
	}

	highest, err := s.entitlements.HighestEntitlement(ctx, reportID)
	if err != nil {
		s.logger.Error("failed to load entitlements", zap.String("report_id", reportID), zap.Error(err))
		return nil, fmt.Errorf("failed to resolve entitlement: %w", err)
	}

	result := freeResult()
	if highest != nil {
		result.Tier = highest.Tier
		result.Source = sourceOf(highest)
	}

	if flags.ReferralUnlockEnabled {
		referral, err := s.referrals.FindReferralByReportID(ctx, reportID)
		switch {
		case err == nil:
			code := referral.Code
			result.Entitlements.ReferralCode = &code
			result.Entitlements.ReferralCount = referral.Count
		case errors.Is(err, store.ErrReferralNotFound):
		default:
			s.logger.Error("failed to load referral", zap.String("report_id", reportID), zap.Error(err))
			return nil, fmt.Errorf("failed to resolve entitlement: %w", err)
		}
	}

	result.Entitlements.HasProReport = domain.TierHasAccess(result.Tier, domain.TierPro)
	result.Entitlements.HasPremiumToolkit = domain.TierHasAccess(result.Tier, domain.TierPremium)
	result.Entitlements.CanUpgrade = result.Tier != domain.TierPremium && flags.ProReportEnabled
	return result, nil
}

// GetEntitlementForClient strips the resolver output down to what browsers may see.
func (s *EntitlementService) GetEntitlementForClient(ctx context.Context, in ResolveInput) (*domain.ClientEntitlement, error) {
	result, err := s.ResolveEntitlement(ctx, in)
	if err != nil {
		return nil, err
	}
	return &domain.ClientEntitlement{
		Tier:              result.Tier,
		HasProReport:      result.Entitlements.HasProReport,
		HasPremiumToolkit: result.Entitlements.HasPremiumToolkit,
		CanUpgrade:        result.Entitlements.CanUpgrade,
		ReferralCode:      result.Entitlements.ReferralCode,
	}, nil
}

// GrantEntitlement gives a report access to tier. Granting a tier the report
// already holds (or exceeds) is a logged no-op and reports false.
func (s *EntitlementService) GrantEntitlement(ctx context.Context, reportID string, tier domain.ReportTier, source domain.GrantSource) (bool, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return false, fmt.Errorf("%w: reportId is required", ErrInvalidRequest)
	}
	if !tier.Valid() || tier == domain.TierFree {
		return false, fmt.Errorf("%w: cannot grant tier %q", ErrInvalidRequest, tier)
	}

	entitlement, created, err := s.entitlements.GrantEntitlement(ctx, reportID, tier, source)
	if err != nil {
		s.logger.Error("failed to grant entitlement", zap.String("report_id", reportID), zap.String("tier", string(tier)), zap.Error(err))
		return false, fmt.Errorf("failed to grant entitlement: %w", err)
	}
	if !created {
		held := tier
		if entitlement != nil {
			held = entitlement.Tier
		}
		s.logger.Info("entitlement already held; grant skipped",
			zap.String("report_id", reportID),
			zap.String("requested_tier", string(tier)),
			zap.String("held_tier", string(held)),
		)
		return false, nil
	}

	s.logger.Info("entitlement granted",
		zap.String("report_id", reportID),
		zap.String("tier", string(tier)),
		zap.String("purchase_id", source.PurchaseID),
		zap.String("referral_id", source.ReferralID),
	)

	event := domain.EntitlementGrantedEvent{
		EntitlementID: entitlement.ID,
		ReportID:      reportID,
		Tier:          tier,
		PurchaseID:    source.PurchaseID,
		ReferralID:    source.ReferralID,
		GrantedAt:     s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, s.exchange, rabbitmq.RoutingEntitlementGranted, event); err != nil {
		s.logger.Warn("failed to publish entitlement.granted event", zap.String("report_id", reportID), zap.Error(err))
	}
	return true, nil
}

// CanUpgrade reports whether the report may buy target right now.
func (s *EntitlementService) CanUpgrade(ctx context.Context, reportID string, target domain.ReportTier) (bool, error) {
	if !s.flags.Flags().TierPurchasable(target) {
		return false, nil
	}
	result, err := s.ResolveEntitlement(ctx, ResolveInput{ReportID: reportID})
	if err != nil {
		return false, err
	}
	return domain.CompareTiers(result.Tier, target) < 0, nil
}

// ValidatePurchaseEligibility runs the pre-checkout checks in order: a held
// tier at or above the requested one, then an open or finished purchase of
// the same tier.
func (s *EntitlementService) ValidatePurchaseEligibility(ctx context.Context, reportID string, tier domain.ReportTier) (domain.Eligibility, error) {
	highest, err := s.entitlements.HighestEntitlement(ctx, reportID)
	if err != nil {
		return domain.Eligibility{}, fmt.Errorf("failed to load entitlements: %w", err)
	}
	if highest != nil && domain.TierHasAccess(highest.Tier, tier) {
		return domain.Eligibility{Reason: reasonTierHeld}, nil
	}

	completed, err := s.purchases.ListCompletedPurchaseTiers(ctx, reportID)
	if err != nil {
		return domain.Eligibility{}, fmt.Errorf("failed to load purchases: %w", err)
	}
	for _, paid := range completed {
		if domain.TierHasAccess(paid, tier) {
			return domain.Eligibility{Reason: reasonTierHeld}, nil
		}
	}

	ongoing, err := s.purchases.HasPendingOrCompletedPurchase(ctx, reportID, tier)
	if err != nil {
		return domain.Eligibility{}, fmt.Errorf("failed to load purchases: %w", err)
	}
	if ongoing {
		return domain.Eligibility{Reason: reasonPurchaseOngoing}, nil
	}
	return domain.Eligibility{Eligible: true}, nil
}

func freeResult() *domain.EntitlementResult {
	return &domain.EntitlementResult{
		Tier:   domain.TierFree,
		Source: domain.SourceDefault,
	}
}

func sourceOf(e *domain.Entitlement) domain.EntitlementSource {
	switch {
	case e.SourcePurchaseID != nil:
		return domain.SourcePurchase
	case e.SourceReferralID != nil:
		return domain.SourceReferral
	default:
		return domain.SourceManual
	}
}
