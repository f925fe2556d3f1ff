/**
 * @description
 * HTTP handlers for the income-service. Handlers decode requests, call the
 * application services and translate service errors into status codes.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/app"
	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/income"
	"github.com/autolytiq/income-service/internal/store"
	"github.com/autolytiq/income-service/pkg/stripeclient"
)

const maxWebhookBodyBytes = 1 << 20

// IncomeService is the projection engine as seen by the handlers.
type IncomeService interface {
	Project(req app.ProjectRequest) (domain.ProjectionResult, error)
	SummarizeStreams(streams []domain.IncomeStream) (domain.StreamSummary, error)
	NormalizeSnapshot(raw []byte) (*app.SnapshotResult, error)
}

// EntitlementService resolves and grants report tiers.
type EntitlementService interface {
	GetEntitlementForClient(ctx context.Context, in app.ResolveInput) (*domain.ClientEntitlement, error)
	GrantEntitlement(ctx context.Context, reportID string, tier domain.ReportTier, source domain.GrantSource) (bool, error)
}

// CheckoutService runs the purchase lifecycle.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, req app.CheckoutRequest) (*app.CheckoutResult, error)
	CheckoutStatus(ctx context.Context, sessionID string) (*app.CheckoutStatus, error)
	HandleWebhookEvent(ctx context.Context, event *stripeclient.Event) error
}

// ReferralService runs the referral unlock program.
type ReferralService interface {
	CreateReferral(ctx context.Context, req app.CreateReferralRequest) (*app.ReferralSummary, error)
	TrackReferral(ctx context.Context, req app.TrackReferralRequest) (*app.TrackResult, error)
	ReferralStatus(ctx context.Context, reportID string) (*app.ReferralStatus, error)
}

// ReportService builds tier-gated reports.
type ReportService interface {
	GenerateReport(ctx context.Context, req app.ReportRequest) (*app.IncomeReport, error)
}

// PurchaseExpirer sweeps abandoned checkouts.
type PurchaseExpirer interface {
	ExpireStalePurchases(ctx context.Context) (int, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the dependencies of Handler.
type Services struct {
	Income        IncomeService
	Entitlements  EntitlementService
	Checkout      CheckoutService
	Referrals     ReferralService
	Reports       ReportService
	Expirer       PurchaseExpirer
	Flags         app.FlagReader
	DB            Pinger
	Pricing       domain.PricingConfig
	WebhookSecret string
}

// Handler holds the application services that handlers will interact with.
type Handler struct {
	svc    Services
	logger *zap.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(svc Services, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

type checkoutKind int

const (
	checkoutProReport checkoutKind = iota
	checkoutPremiumToolkit
)

func (k checkoutKind) tier() domain.ReportTier {
	if k == checkoutPremiumToolkit {
		return domain.TierPremium
	}
	return domain.TierPro
}

func (k checkoutKind) disabledMessage() string {
	if k == checkoutPremiumToolkit {
		return "Premium toolkit is not available"
	}
	return "Pro reports are not available"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.svc.DB != nil {
		if err := h.svc.DB.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", zap.Error(err))
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleProject(w http.ResponseWriter, r *http.Request) {
	var req app.ProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Income.Project(req)
	if err != nil {
		h.respondWithServiceError(w, err, "")
		return
	}
	respondWithJSON(w, http.StatusOK, income.View(result))
}

type streamSummaryRequest struct {
	Streams []domain.IncomeStream `json:"streams"`
}

func (h *Handler) handleStreamSummary(w http.ResponseWriter, r *http.Request) {
	var req streamSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.svc.Income.SummarizeStreams(req.Streams)
	if err != nil {
		h.respondWithServiceError(w, err, "")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := h.svc.Income.NormalizeSnapshot(raw)
	if err != nil {
		h.respondWithServiceError(w, err, "")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.svc.Flags.Flags()
	respondWithJSON(w, http.StatusOK, domain.MonetizationFlags{
		MonetizationEnabled:   flags.MonetizationEnabled,
		ProReportEnabled:      flags.FeatureEnabled(flags.ProReportEnabled),
		PremiumToolkitEnabled: flags.FeatureEnabled(flags.PremiumToolkitEnabled),
		AffiliateBlockEnabled: flags.FeatureEnabled(flags.AffiliateBlockEnabled),
		ReferralUnlockEnabled: flags.FeatureEnabled(flags.ReferralUnlockEnabled),
		B2BInquiryEnabled:     flags.FeatureEnabled(flags.B2BInquiryEnabled),
	})
}

type priceView struct {
	Enabled        bool   `json:"enabled"`
	PriceCents     int64  `json:"priceCents"`
	PriceFormatted string `json:"priceFormatted"`
	Currency       string `json:"currency"`
}

func (h *Handler) handlePricing(w http.ResponseWriter, r *http.Request) {
	flags := h.svc.Flags.Flags()
	if !flags.MonetizationEnabled {
		respondWithJSON(w, http.StatusOK, map[string]bool{"enabled": false})
		return
	}

	p := h.svc.Pricing
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"proReport": priceView{
			Enabled:        flags.ProReportEnabled,
			PriceCents:     p.ProReportPriceCents,
			PriceFormatted: formatPrice(p.ProReportPriceCents, p.ProReportCurrency),
			Currency:       p.ProReportCurrency,
		},
		"premiumToolkit": priceView{
			Enabled:        flags.PremiumToolkitEnabled,
			PriceCents:     p.PremiumToolkitPriceCents,
			PriceFormatted: formatPrice(p.PremiumToolkitPriceCents, p.PremiumToolkitCurrency),
			Currency:       p.PremiumToolkitCurrency,
		},
	})
}

func (h *Handler) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	if reportID == "" {
		respondWithError(w, http.StatusBadRequest, "Report ID is required")
		return
	}

	entitlement, err := h.svc.Entitlements.GetEntitlementForClient(r.Context(), app.ResolveInput{
		ReportID: reportID,
		UserID:   userIDFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("failed to resolve entitlement", zap.String("report_id", reportID), zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "Entitlement temporarily unavailable")
		return
	}
	respondWithJSON(w, http.StatusOK, entitlement)
}

func (h *Handler) handleReferralStatus(w http.ResponseWriter, r *http.Request) {
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	if reportID == "" {
		respondWithError(w, http.StatusBadRequest, "Report ID is required")
		return
	}

	status, err := h.svc.Referrals.ReferralStatus(r.Context(), reportID)
	if err != nil {
		h.respondWithServiceError(w, err, "")
		return
	}

	switch {
	case !status.Enabled:
		respondWithJSON(w, http.StatusOK, map[string]bool{"enabled": false})
	case !status.HasCode:
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"enabled":  true,
			"hasCode":  false,
			"required": status.Required,
		})
	default:
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"enabled":       true,
			"hasCode":       true,
			"code":          status.Code,
			"count":         status.Count,
			"required":      status.Required,
			"rewardGranted": status.RewardGranted,
		})
	}
}

type createReferralRequest struct {
	ReportID string `json:"reportId"`
	Email    string `json:"email"`
}

func (h *Handler) handleCreateReferral(w http.ResponseWriter, r *http.Request) {
	var req createReferralRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	summary, err := h.svc.Referrals.CreateReferral(r.Context(), app.CreateReferralRequest{
		ReportID: req.ReportID,
		Email:    req.Email,
		UserID:   userIDFromContext(r.Context()),
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Referral system is not available")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

type trackReferralRequest struct {
	Code        string `json:"code"`
	NewReportID string `json:"newReportId"`
	Fingerprint string `json:"fingerprint"`
}

func (h *Handler) handleTrackReferral(w http.ResponseWriter, r *http.Request) {
	var req trackReferralRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Referrals.TrackReferral(r.Context(), app.TrackReferralRequest{
		Code:        req.Code,
		NewReportID: req.NewReportID,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Referral system is not available")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

type checkoutRequest struct {
	ReportID   string `json:"reportId"`
	Email      string `json:"email"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func (h *Handler) handleCheckout(kind checkoutKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := h.svc.Checkout.CreateCheckout(r.Context(), app.CheckoutRequest{
			ReportID:   req.ReportID,
			Email:      req.Email,
			UserID:     userIDFromContext(r.Context()),
			Tier:       kind.tier(),
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		})
		if err != nil {
			h.respondWithServiceError(w, err, kind.disabledMessage())
			return
		}
		respondWithJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) handleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	status, err := h.svc.Checkout.CheckoutStatus(r.Context(), sessionID)
	if err != nil {
		h.respondWithServiceError(w, err, "")
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if h.svc.WebhookSecret == "" || signature == "" {
		h.logger.Warn("webhook rejected: missing signature or secret")
		respondWithError(w, http.StatusBadRequest, "Missing signature or webhook secret")
		return
	}

	event, err := stripeclient.ConstructEvent(payload, signature, h.svc.WebhookSecret, stripeclient.DefaultTolerance)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	if err := h.svc.Checkout.HandleWebhookEvent(r.Context(), event); err != nil {
		h.logger.Error("webhook handler failed", zap.String("event_id", event.ID), zap.String("event_type", event.Type), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Webhook handler failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type reportRequest struct {
	YTDEarnings   string                `json:"ytdIncome"`
	StartDate     string                `json:"startDate"`
	AsOfDate      string                `json:"checkDate"`
	MonthlyIncome string                `json:"monthlyIncome"`
	Streams       []domain.IncomeStream `json:"streams"`
	Email         string                `json:"email"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	if reportID == "" {
		respondWithError(w, http.StatusBadRequest, "Report ID is required")
		return
	}

	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identity := app.ResolveInput{ReportID: reportID, UserID: userIDFromContext(r.Context())}
	if email := strings.TrimSpace(req.Email); email != "" {
		identity.Email = &email
	}

	report, err := h.svc.Reports.GenerateReport(r.Context(), app.ReportRequest{
		Identity: identity,
		Projection: app.ProjectRequest{
			YTDEarnings:   req.YTDEarnings,
			StartDate:     req.StartDate,
			AsOfDate:      req.AsOfDate,
			MonthlyIncome: req.MonthlyIncome,
		},
		Streams: req.Streams,
	})
	if err != nil {
		h.respondWithServiceError(w, err, "")
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

type grantRequest struct {
	ReportID   string `json:"reportId"`
	Tier       string `json:"tier"`
	PurchaseID string `json:"purchaseId"`
	ReferralID string `json:"referralId"`
}

func (h *Handler) handleInternalGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tier, err := domain.ParseReportTier(req.Tier)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	granted, err := h.svc.Entitlements.GrantEntitlement(r.Context(), req.ReportID, tier, domain.GrantSource{
		PurchaseID: strings.TrimSpace(req.PurchaseID),
		ReferralID: strings.TrimSpace(req.ReferralID),
	})
	if err != nil {
		h.respondWithServiceError(w, err, "")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

func (h *Handler) handleInternalExpire(w http.ResponseWriter, r *http.Request) {
	expired, err := h.svc.Expirer.ExpireStalePurchases(r.Context())
	if err != nil {
		h.logger.Error("manual purchase expiry failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to expire purchases")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"expired": expired})
}

// respondWithServiceError maps service errors to HTTP responses.
// disabledMessage is the route-specific text for a switched-off feature.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, err error, disabledMessage string) {
	var eligibility *app.EligibilityError
	switch {
	case errors.Is(err, app.ErrFeatureDisabled), errors.Is(err, app.ErrMonetizationDisabled):
		if disabledMessage == "" {
			disabledMessage = "Feature is not available"
		}
		respondWithError(w, http.StatusForbidden, disabledMessage)
	case errors.As(err, &eligibility):
		respondWithError(w, http.StatusConflict, eligibility.Reason)
	case errors.Is(err, app.ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), app.ErrInvalidRequest.Error()+": "))
	case errors.Is(err, app.ErrSelfReferral):
		respondWithError(w, http.StatusBadRequest, "Cannot refer yourself")
	case errors.Is(err, app.ErrDuplicateReferral):
		respondWithError(w, http.StatusConflict, "Referral already tracked")
	case errors.Is(err, store.ErrReferralNotFound):
		respondWithError(w, http.StatusNotFound, "Invalid referral code")
	case errors.Is(err, store.ErrPurchaseNotFound):
		respondWithError(w, http.StatusNotFound, "Purchase not found")
	case errors.Is(err, income.ErrInvalidInput),
		errors.Is(err, income.ErrInvalidDateRange),
		errors.Is(err, income.ErrInvalidStream),
		errors.Is(err, income.ErrUnknownFrequency),
		errors.Is(err, income.ErrSnapshotVersion):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrEntitlementUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "Entitlement temporarily unavailable")
	case errors.Is(err, app.ErrPaymentNotConfigured):
		h.logger.Error("payment provider not configured")
		respondWithError(w, http.StatusInternalServerError, "Payment system not configured")
	default:
		h.logger.Error("request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func formatPrice(cents int64, currency string) string {
	symbol := "$"
	switch strings.ToLower(currency) {
	case "eur":
		symbol = "€"
	case "gbp":
		symbol = "£"
	}
	return fmt.Sprintf("%s%d.%02d", symbol, cents/100, cents%100)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to marshal JSON response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
