package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/store"
	"github.com/autolytiq/income-service/pkg/rabbitmq"
)

const (
	// Ambiguous characters (0/O, 1/I) are left out.
	referralAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralCodeLength   = 6
	referralCodeAttempts = 5
	duplicateWindow      = 24 * time.Hour
)

// CreateReferralRequest asks for the referral code of a report.
type CreateReferralRequest struct {
	ReportID string
	Email    string
	UserID   *string
}

// TrackReferralRequest records that NewReportID arrived through Code.
// Fingerprint is an optional client fingerprint; only its hash is stored.
type TrackReferralRequest struct {
	Code        string
	NewReportID string
	Fingerprint string
}

// ReferralSummary is the owner's view of a referral code.
type ReferralSummary struct {
	Code          string `json:"code"`
	Count         int    `json:"count"`
	RewardGranted bool   `json:"rewardGranted"`
}

// TrackResult is returned after a conversion is recorded.
type TrackResult struct {
	Tracked       bool `json:"tracked"`
	Count         int  `json:"count"`
	RewardGranted bool `json:"rewardGranted"`
}

// ReferralStatus describes a report's referral progress.
type ReferralStatus struct {
	Enabled       bool
	HasCode       bool
	Code          string
	Count         int
	Required      int
	RewardGranted bool
}

// ReferralService runs the referral unlock program.
type ReferralService struct {
	referrals    ReferralRepository
	entitlements *EntitlementService
	flags        FlagReader
	publisher    Publisher
	exchange     string
	threshold    int
	logger       *zap.Logger
	now          func() time.Time
	newCode      func() (string, error)
}

// NewReferralService creates a new referral service. threshold is the
// number of conversions that unlock the PRO reward.
func NewReferralService(
	referrals ReferralRepository,
	entitlements *EntitlementService,
	flags FlagReader,
	publisher Publisher,
	exchange string,
	threshold int,
	logger *zap.Logger,
) *ReferralService {
	if threshold < 1 {
		threshold = 1
	}
	return &ReferralService{
		referrals:    referrals,
		entitlements: entitlements,
		flags:        flags,
		publisher:    publisher,
		exchange:     exchange,
		threshold:    threshold,
		logger:       logger,
		now:          time.Now,
		newCode:      generateReferralCode,
	}
}

func (s *ReferralService) enabled() bool {
	flags := s.flags.Flags()
	return flags.FeatureEnabled(flags.ReferralUnlockEnabled)
}

// CreateReferral returns the report's referral code, creating it on first use.
func (s *ReferralService) CreateReferral(ctx context.Context, req CreateReferralRequest) (*ReferralSummary, error) {
	if !s.enabled() {
		return nil, ErrFeatureDisabled
	}
	reportID := strings.TrimSpace(req.ReportID)
	email := strings.TrimSpace(req.Email)
	if reportID == "" || email == "" {
		return nil, fmt.Errorf("%w: reportId and email are required", ErrInvalidRequest)
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate referral code: %w", err)
		}
		referral, created, err := s.referrals.CreateReferral(ctx, domain.Referral{
			Code:          code,
			OwnerReportID: reportID,
			OwnerUserID:   req.UserID,
			OwnerEmail:    email,
		})
		if errors.Is(err, store.ErrReferralCodeTaken) {
			s.logger.Debug("referral code collision; retrying", zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create referral: %w", err)
		}
		if created {
			s.logger.Info("referral created", zap.String("report_id", reportID), zap.String("code", referral.Code))
		}
		return &ReferralSummary{Code: referral.Code, Count: referral.Count, RewardGranted: referral.RewardGranted}, nil
	}
	return nil, fmt.Errorf("failed to create referral: no free code after %d attempts", referralCodeAttempts)
}

// TrackReferral records one conversion and grants the owner PRO once the
// count reaches the threshold.
func (s *ReferralService) TrackReferral(ctx context.Context, req TrackReferralRequest) (*TrackResult, error) {
	if !s.enabled() {
		return nil, ErrFeatureDisabled
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	newReportID := strings.TrimSpace(req.NewReportID)
	if code == "" || newReportID == "" {
		return nil, fmt.Errorf("%w: code and newReportId are required", ErrInvalidRequest)
	}

	referral, err := s.referrals.FindReferralByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referral.OwnerReportID == newReportID {
		return nil, ErrSelfReferral
	}

	fingerprint := hashFingerprint(req.Fingerprint)
	duplicate, err := s.referrals.IsDuplicateReferral(ctx, code, newReportID, fingerprint, s.now().Add(-duplicateWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to check referral duplicates: %w", err)
	}
	if duplicate {
		return nil, ErrDuplicateReferral
	}

	updated, err := s.referrals.RecordReferralEvent(ctx, domain.ReferralEvent{
		ReferralID:      referral.ID,
		Code:            code,
		NewReportID:     newReportID,
		FingerprintHash: fingerprint,
	})
	if errors.Is(err, store.ErrReferralAlreadyTracked) {
		return nil, ErrDuplicateReferral
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record referral: %w", err)
	}
	s.logger.Info("referral tracked", zap.String("code", code), zap.String("new_report_id", newReportID), zap.Int("count", updated.Count))

	rewardGranted := updated.RewardGranted
	if !rewardGranted && updated.Count >= s.threshold {
		rewardGranted, err = s.grantReward(ctx, updated)
		if err != nil {
			return nil, err
		}
	}
	return &TrackResult{Tracked: true, Count: updated.Count, RewardGranted: rewardGranted}, nil
}

func (s *ReferralService) grantReward(ctx context.Context, referral *domain.Referral) (bool, error) {
	if _, err := s.entitlements.GrantEntitlement(ctx, referral.OwnerReportID, domain.TierPro, domain.GrantSource{ReferralID: referral.ID}); err != nil {
		return false, fmt.Errorf("failed to grant referral reward: %w", err)
	}
	marked, err := s.referrals.MarkReferralRewardGranted(ctx, referral.ID)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral reward: %w", err)
	}
	if !marked {
		// A concurrent conversion already flipped the flag.
		return true, nil
	}

	s.logger.Info("referral reward granted", zap.String("referral_id", referral.ID), zap.String("owner_report_id", referral.OwnerReportID))
	event := domain.ReferralRewardEvent{
		ReferralID:    referral.ID,
		OwnerReportID: referral.OwnerReportID,
		Code:          referral.Code,
		Count:         referral.Count,
		Tier:          domain.TierPro,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, s.exchange, rabbitmq.RoutingReferralRewardGranted, event); err != nil {
		s.logger.Warn("failed to publish referral reward event", zap.String("referral_id", referral.ID), zap.Error(err))
	}
	return true, nil
}

// ReferralStatus reports the referral progress of a report.
func (s *ReferralService) ReferralStatus(ctx context.Context, reportID string) (*ReferralStatus, error) {
	if !s.enabled() {
		return &ReferralStatus{}, nil
	}
	referral, err := s.referrals.FindReferralByReportID(ctx, strings.TrimSpace(reportID))
	if errors.Is(err, store.ErrReferralNotFound) {
		return &ReferralStatus{Enabled: true, Required: s.threshold}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ReferralStatus{
		Enabled:       true,
		HasCode:       true,
		Code:          referral.Code,
		Count:         referral.Count,
		Required:      s.threshold,
		RewardGranted: referral.RewardGranted,
	}, nil
}

func generateReferralCode() (string, error) {
	return gonanoid.Generate(referralAlphabet, referralCodeLength)
}

func hashFingerprint(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(raw))
	hashed := hex.EncodeToString(sum[:])
	return &hashed
}
