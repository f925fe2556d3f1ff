package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/store"
	"github.com/autolytiq/income-service/pkg/stripeclient"
)

// memoryStore implements every repository port in memory with the same
// uniqueness rules as the PostgreSQL schema.
type memoryStore struct {
	mu           sync.Mutex
	seq          int
	entitlements []domain.Entitlement
	purchases    []domain.Purchase
	referrals    []domain.Referral
	events       []domain.ReferralEvent
	takenCodes   map[string]bool

	failEntitlements error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{takenCodes: map[string]bool{}}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_%d", prefix, m.seq)
}

func (m *memoryStore) HighestEntitlement(ctx context.Context, reportID string) (*domain.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEntitlements != nil {
		return nil, m.failEntitlements
	}
	return m.highestLocked(reportID), nil
}

func (m *memoryStore) highestLocked(reportID string) *domain.Entitlement {
	var best *domain.Entitlement
	for i := range m.entitlements {
		e := m.entitlements[i]
		if e.ReportID != reportID {
			continue
		}
		if best == nil || domain.CompareTiers(e.Tier, best.Tier) > 0 {
			best = &e
		}
	}
	return best
}

func (m *memoryStore) GrantEntitlement(ctx context.Context, reportID string, tier domain.ReportTier, source domain.GrantSource) (*domain.Entitlement, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEntitlements != nil {
		return nil, false, m.failEntitlements
	}
	if held := m.highestLocked(reportID); held != nil && domain.TierHasAccess(held.Tier, tier) {
		return held, false, nil
	}
	e := domain.Entitlement{ID: m.nextID("ent"), ReportID: reportID, Tier: tier, CreatedAt: time.Now()}
	if source.PurchaseID != "" {
		id := source.PurchaseID
		e.SourcePurchaseID = &id
	}
	if source.ReferralID != "" {
		id := source.ReferralID
		e.SourceReferralID = &id
	}
	m.entitlements = append(m.entitlements, e)
	return &e, true, nil
}

func (m *memoryStore) entitlementCount(reportID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entitlements {
		if e.ReportID == reportID {
			n++
		}
	}
	return n
}

func (m *memoryStore) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.purchases {
		if existing.Provider == p.Provider && existing.ProviderRef == p.ProviderRef {
			return store.ErrDuplicatePurchase
		}
	}
	if p.ID == "" {
		p.ID = m.nextID("pur")
	}
	if p.Status == "" {
		p.Status = domain.PurchasePending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.purchases = append(m.purchases, *p)
	return nil
}

func (m *memoryStore) FindPurchaseByProviderRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.Provider == provider && p.ProviderRef == ref {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrPurchaseNotFound
}

func (m *memoryStore) ListCompletedPurchaseTiers(ctx context.Context, reportID string) ([]domain.ReportTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tiers []domain.ReportTier
	for _, p := range m.purchases {
		if p.ReportID == reportID && p.Status == domain.PurchaseCompleted {
			tiers = append(tiers, p.Tier)
		}
	}
	return tiers, nil
}

func (m *memoryStore) HasPendingOrCompletedPurchase(ctx context.Context, reportID string, tier domain.ReportTier) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.ReportID == reportID && p.Tier == tier && (p.Status == domain.PurchasePending || p.Status == domain.PurchaseCompleted) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) TransitionPurchaseStatus(ctx context.Context, id string, status domain.PurchaseStatus, from ...domain.PurchaseStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.purchases {
		if m.purchases[i].ID != id {
			continue
		}
		allowed := len(from) == 0
		for _, f := range from {
			if m.purchases[i].Status == f {
				allowed = true
			}
		}
		if !allowed {
			return false, nil
		}
		m.purchases[i].Status = status
		return true, nil
	}
	return false, nil
}

func (m *memoryStore) ExpireStalePendingPurchases(ctx context.Context, cutoff time.Time) ([]domain.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []domain.Purchase
	for i := range m.purchases {
		if m.purchases[i].Status == domain.PurchasePending && m.purchases[i].CreatedAt.Before(cutoff) {
			m.purchases[i].Status = domain.PurchaseExpired
			expired = append(expired, m.purchases[i])
		}
	}
	return expired, nil
}

func (m *memoryStore) purchase(ref string) domain.Purchase {
	p, _ := m.FindPurchaseByProviderRef(context.Background(), domain.ProviderStripe, ref)
	if p == nil {
		return domain.Purchase{}
	}
	return *p
}

func (m *memoryStore) CreateReferral(ctx context.Context, r domain.Referral) (*domain.Referral, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.referrals {
		if existing.OwnerReportID == r.OwnerReportID {
			found := existing
			return &found, false, nil
		}
	}
	if m.takenCodes[r.Code] {
		return nil, false, store.ErrReferralCodeTaken
	}
	r.ID = m.nextID("ref")
	r.CreatedAt = time.Now()
	m.takenCodes[r.Code] = true
	m.referrals = append(m.referrals, r)
	return &r, true, nil
}

func (m *memoryStore) findReferral(match func(domain.Referral) bool) (*domain.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.referrals {
		if match(r) {
			found := r
			return &found, nil
		}
	}
	return nil, store.ErrReferralNotFound
}

func (m *memoryStore) FindReferralByCode(ctx context.Context, code string) (*domain.Referral, error) {
	return m.findReferral(func(r domain.Referral) bool { return r.Code == code })
}

func (m *memoryStore) FindReferralByReportID(ctx context.Context, reportID string) (*domain.Referral, error) {
	return m.findReferral(func(r domain.Referral) bool { return r.OwnerReportID == reportID })
}

func (m *memoryStore) IsDuplicateReferral(ctx context.Context, code, newReportID string, fingerprint *string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.NewReportID == newReportID {
			return true, nil
		}
		if fingerprint != nil && e.FingerprintHash != nil && *e.FingerprintHash == *fingerprint && e.Code == code && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) RecordReferralEvent(ctx context.Context, event domain.ReferralEvent) (*domain.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.NewReportID == event.NewReportID {
			return nil, store.ErrReferralAlreadyTracked
		}
	}
	for i := range m.referrals {
		if m.referrals[i].ID == event.ReferralID {
			event.ID = m.nextID("evt")
			event.CreatedAt = time.Now()
			m.events = append(m.events, event)
			m.referrals[i].Count++
			updated := m.referrals[i]
			return &updated, nil
		}
	}
	return nil, store.ErrReferralNotFound
}

func (m *memoryStore) MarkReferralRewardGranted(ctx context.Context, referralID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.referrals {
		if m.referrals[i].ID == referralID {
			if m.referrals[i].RewardGranted {
				return false, nil
			}
			m.referrals[i].RewardGranted = true
			return true, nil
		}
	}
	return false, store.ErrReferralNotFound
}

type flagStub struct {
	mu    sync.Mutex
	flags domain.MonetizationFlags
}

func (f *flagStub) Flags() domain.MonetizationFlags {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

func (f *flagStub) set(flags domain.MonetizationFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = flags
}

func allFlagsOn() domain.MonetizationFlags {
	return domain.MonetizationFlags{
		MonetizationEnabled:   true,
		ProReportEnabled:      true,
		PremiumToolkitEnabled: true,
		ReferralUnlockEnabled: true,
	}
}

type publishedEvent struct {
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{routingKey: routingKey, body: body})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	sort.Strings(keys)
	return keys
}

type gatewayStub struct {
	params []stripeclient.CheckoutSessionParams
	err    error
}

func (g *gatewayStub) CreateCheckoutSession(ctx context.Context, params stripeclient.CheckoutSessionParams) (*stripeclient.CheckoutSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.params = append(g.params, params)
	id := fmt.Sprintf("cs_test_%d", len(g.params))
	return &stripeclient.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/" + id}, nil
}

var errStoreDown = errors.New("connection refused")

type testEnv struct {
	store     *memoryStore
	flags     *flagStub
	publisher *recordingPublisher
	gateway   *gatewayStub
	ents      *EntitlementService
	checkout  *CheckoutService
	referrals *ReferralService
}

func newTestEnv(flags domain.MonetizationFlags) *testEnv {
	st := newMemoryStore()
	fl := &flagStub{flags: flags}
	pub := &recordingPublisher{}
	gw := &gatewayStub{}
	logger := zap.NewNop()

	ents := NewEntitlementService(st, st, st, fl, pub, "test.events", logger)
	checkout := NewCheckoutService(st, ents, fl, gw, pub, CheckoutConfig{
		Exchange: "test.events",
		Pricing: domain.PricingConfig{
			ProReportPriceCents:      999,
			ProReportCurrency:        "usd",
			PremiumToolkitPriceCents: 2999,
			PremiumToolkitCurrency:   "usd",
		},
		AppURL:     "https://example.com",
		SessionTTL: 30 * time.Minute,
	}, logger)
	referrals := NewReferralService(st, ents, fl, pub, "test.events", 1, logger)

	return &testEnv{
		store:     st,
		flags:     fl,
		publisher: pub,
		gateway:   gw,
		ents:      ents,
		checkout:  checkout,
		referrals: referrals,
	}
}
