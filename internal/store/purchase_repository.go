package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autolytiq/income-service/internal/domain"
)

const purchaseColumns = `id, user_id, email, report_id, tier, amount_cents, currency,
		       provider, provider_ref, status, created_at, updated_at`

// CreatePurchase records a new purchase. ID, status and timestamps are filled
// in when empty.
func (r *Repository) CreatePurchase(ctx context.Context, purchase *domain.Purchase) error {
	if purchase.ID == "" {
		purchase.ID = newID()
	}
	if purchase.Status == "" {
		purchase.Status = domain.PurchasePending
	}

	query := `
		INSERT INTO purchases (id, user_id, email, report_id, tier, amount_cents, currency, provider, provider_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		purchase.ID,
		purchase.UserID,
		purchase.Email,
		purchase.ReportID,
		purchase.Tier,
		purchase.AmountCents,
		purchase.Currency,
		purchase.Provider,
		purchase.ProviderRef,
		purchase.Status,
	).Scan(&purchase.CreatedAt, &purchase.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "idx_purchases_provider_ref") {
			return ErrDuplicatePurchase
		}
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

// FindPurchaseByProviderRef looks a purchase up by the provider's session id.
func (r *Repository) FindPurchaseByProviderRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE provider = $1 AND provider_ref = $2`
	purchase, err := scanPurchase(r.db.QueryRow(ctx, query, provider, ref))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return purchase, nil
}

// ListCompletedPurchaseTiers returns the tiers of every completed purchase of
// a report.
func (r *Repository) ListCompletedPurchaseTiers(ctx context.Context, reportID string) ([]domain.ReportTier, error) {
	rows, err := r.db.Query(ctx,
		"SELECT DISTINCT tier FROM purchases WHERE report_id = $1 AND status = $2",
		reportID, domain.PurchaseCompleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []domain.ReportTier
	for rows.Next() {
		var tier domain.ReportTier
		if err := rows.Scan(&tier); err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

// HasPendingOrCompletedPurchase reports whether a checkout for tier is in
// flight or already paid.
func (r *Repository) HasPendingOrCompletedPurchase(ctx context.Context, reportID string, tier domain.ReportTier) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM purchases
			WHERE report_id = $1 AND tier = $2 AND status IN ($3, $4)
		)
	`, reportID, tier, domain.PurchasePending, domain.PurchaseCompleted).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// TransitionPurchaseStatus moves a purchase to status when its current status
// is one of from. It reports false without error when the purchase was in
// another state.
func (r *Repository) TransitionPurchaseStatus(ctx context.Context, id string, status domain.PurchaseStatus, from ...domain.PurchaseStatus) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE purchases
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, status, allowed)
	if err != nil {
		return false, fmt.Errorf("failed to update purchase status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireStalePendingPurchases marks pending purchases created before cutoff as
// expired and returns them.
func (r *Repository) ExpireStalePendingPurchases(ctx context.Context, cutoff time.Time) ([]domain.Purchase, error) {
	query := `
		UPDATE purchases
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND created_at < $3
		RETURNING ` + purchaseColumns
	rows, err := r.db.Query(ctx, query, domain.PurchaseExpired, domain.PurchasePending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *purchase)
	}
	return expired, rows.Err()
}

func scanPurchase(row pgx.Row) (*domain.Purchase, error) {
	var p domain.Purchase
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Email,
		&p.ReportID,
		&p.Tier,
		&p.AmountCents,
		&p.Currency,
		&p.Provider,
		&p.ProviderRef,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
