package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/store"
	"github.com/autolytiq/income-service/pkg/rabbitmq"
)

func TestGenerateReferralCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := generateReferralCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != referralCodeLength {
			t.Fatalf("expected %d characters, got %q", referralCodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(referralAlphabet, c) {
				t.Fatalf("unexpected character %q in %q", c, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Fatalf("expected mostly unique codes, got %d distinct of 200", len(seen))
	}
}

func TestCreateReferral_IsIdempotentPerReport(t *testing.T) {
	env := newTestEnv(allFlagsOn())
	ctx := context.Background()

	first, err := env.referrals.CreateReferral(ctx, CreateReferralRequest{ReportID: "r1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := env.referrals.CreateReferral(ctx, CreateReferralRequest{ReportID: "r1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Code != second.Code || first.Count != 0 || first.RewardGranted {
		t.Fatalf("expected the same fresh code twice, got %+v and %+v", first, second)
	}
}

func TestCreateReferral_RetriesOnCodeCollision(t *testing.T) {
	env := newTestEnv(allFlagsOn())
	env.store.takenCodes["TAKEN2"] = true

	codes := []string{"TAKEN2", "TAKEN2", "FRESH3"}
	env.referrals.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	summary, err := env.referrals.CreateReferral(context.Background(), CreateReferralRequest{ReportID: "r1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Code != "FRESH3" {
		t.Fatalf("expected the third code, got %q", summary.Code)
	}
}

func TestCreateReferral_Validation(t *testing.T) {
	env := newTestEnv(allFlagsOn())
	if _, err := env.referrals.CreateReferral(context.Background(), CreateReferralRequest{ReportID: "r1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	env.flags.set(domain.MonetizationFlags{ReferralUnlockEnabled: true})
	if _, err := env.referrals.CreateReferral(context.Background(), CreateReferralRequest{ReportID: "r1", Email: "a@b.com"}); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}

func TestTrackReferral_GrantsRewardAtThreshold(t *testing.T) {
	env := newTestEnv(allFlagsOn())
	env.referrals.threshold = 2
	ctx := context.Background()

	owner, err := env.referrals.CreateReferral(ctx, CreateReferralRequest{ReportID: "owner", Email: "o@b.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := env.referrals.TrackReferral(ctx, TrackReferralRequest{Code: strings.ToLower(owner.Code), NewReportID: "friend-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Tracked || first.Count != 1 || first.RewardGranted {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := env.referrals.TrackReferral(ctx, TrackReferralRequest{Code: owner.Code, NewReportID: "friend-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Count != 2 || !second.RewardGranted {
		t.Fatalf("expected reward at threshold, got %+v", second)
	}

	third, err := env.referrals.TrackReferral(ctx, TrackReferralRequest{Code: owner.Code, NewReportID: "friend-3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Count != 3 || !third.RewardGranted {
		t.Fatalf("unexpected third result: %+v", third)
	}

	result, _ := env.ents.ResolveEntitlement(ctx, ResolveInput{ReportID: "owner"})
	if result.Tier != domain.TierPro || result.Source != domain.SourceReferral {
		t.Fatalf("expected referral PRO, got %s/%s", result.Tier, result.Source)
	}
	if n := env.store.entitlementCount("owner"); n != 1 {
		t.Fatalf("expected the reward granted once, got %d rows", n)
	}

	rewards := 0
	for _, key := range env.publisher.keys() {
		if key == rabbitmq.RoutingReferralRewardGranted {
			rewards++
		}
	}
	if rewards != 1 {
		t.Fatalf("expected one reward event, got %d", rewards)
	}
}

func TestTrackReferral_Rejections(t *testing.T) {
	env := newTestEnv(allFlagsOn())
	env.referrals.threshold = 5
	ctx := context.Background()
	owner, err := env.referrals.CreateReferral(ctx, CreateReferralRequest{ReportID: "owner", Email: "o@b.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.referrals.TrackReferral(ctx, TrackReferralRequest{Code: owner.Code, NewReportID: "friend-1", Fingerprint: "fp-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		req  TrackReferralRequest
		want error
	}{
		{name: "missing code", req: TrackReferralRequest{NewReportID: "x"}, want: ErrInvalidRequest},
		{name: "unknown code", req: TrackReferralRequest{Code: "ZZZZZZ", NewReportID: "x"}, want: store.ErrReferralNotFound},
		{name: "self referral", req: TrackReferralRequest{Code: owner.Code, NewReportID: "owner"}, want: ErrSelfReferral},
		{name: "same new report", req: TrackReferralRequest{Code: owner.Code, NewReportID: "friend-1"}, want: ErrDuplicateReferral},
		{name: "same fingerprint", req: TrackReferralRequest{Code: owner.Code, NewReportID: "friend-2", Fingerprint: "fp-1"}, want: ErrDuplicateReferral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.referrals.TrackReferral(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	status, err := env.referrals.ReferralStatus(ctx, "owner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Count != 1 {
		t.Fatalf("expected rejected tracks to leave the count at 1, got %d", status.Count)
	}
}

func TestTrackReferral_Disabled(t *testing.T) {
	env := newTestEnv(domain.MonetizationFlags{MonetizationEnabled: true})
	if _, err := env.referrals.TrackReferral(context.Background(), TrackReferralRequest{Code: "ABCDEF", NewReportID: "x"}); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}

func TestReferralStatus(t *testing.T) {
	env := newTestEnv(allFlagsOn())
	ctx := context.Background()

	status, err := env.referrals.ReferralStatus(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Enabled || status.HasCode || status.Required != 1 {
		t.Fatalf("expected enabled without code, got %+v", status)
	}

	created, _ := env.referrals.CreateReferral(ctx, CreateReferralRequest{ReportID: "r1", Email: "a@b.com"})
	status, _ = env.referrals.ReferralStatus(ctx, "r1")
	if !status.HasCode || status.Code != created.Code || status.Count != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}

	env.flags.set(domain.MonetizationFlags{})
	status, _ = env.referrals.ReferralStatus(ctx, "r1")
	if status.Enabled || status.HasCode {
		t.Fatalf("expected disabled status, got %+v", status)
	}
}

func TestHashFingerprint(t *testing.T) {
	if hashFingerprint("  ") != nil {
		t.Fatal("expected no hash for an empty fingerprint")
	}
	a := hashFingerprint("device-1")
	b := hashFingerprint(" device-1 ")
	if a == nil || b == nil || *a != *b || len(*a) != 64 {
		t.Fatalf("expected stable sha256 hex, got %v %v", a, b)
	}
	if strings.Contains(*a, "device") {
		t.Fatal("expected the raw fingerprint not to be stored")
	}
}
