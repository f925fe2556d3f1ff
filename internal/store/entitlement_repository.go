package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/autolytiq/income-service/internal/domain"
)

// HighestEntitlement returns the highest-tier entitlement of a report, or nil
// when the report has none.
func (r *Repository) HighestEntitlement(ctx context.Context, reportID string) (*domain.Entitlement, error) {
	entitlements, err := listEntitlements(ctx, r.db, reportID)
	if err != nil {
		return nil, err
	}
	best := highestTier(entitlements)
	if best == nil {
		return nil, nil
	}
	found := *best
	return &found, nil
}

// GrantEntitlement inserts an entitlement unless the report already holds the
// tier or a higher one. The check and insert share one transaction holding a
// per-report advisory lock, so concurrent grants for the same report
// serialize; the (report_id, tier) unique index backs this up.
func (r *Repository) GrantEntitlement(ctx context.Context, reportID string, tier domain.ReportTier, source domain.GrantSource) (*domain.Entitlement, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "entitlements:"+reportID); err != nil {
		return nil, false, fmt.Errorf("failed to lock report entitlements: %w", err)
	}

	existing, err := listEntitlements(ctx, tx, reportID)
	if err != nil {
		return nil, false, err
	}
	if best := highestTier(existing); best != nil && domain.TierHasAccess(best.Tier, tier) {
		held := *best
		return &held, false, nil
	}

	query := `
		INSERT INTO entitlements (id, report_id, tier, source_purchase_id, source_referral_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (report_id, tier) DO NOTHING
		RETURNING id, report_id, tier, source_purchase_id, source_referral_id, created_at
	`
	var ent domain.Entitlement
	err = tx.QueryRow(ctx, query,
		newID(),
		reportID,
		tier,
		nullableString(source.PurchaseID),
		nullableString(source.ReferralID),
	).Scan(&ent.ID, &ent.ReportID, &ent.Tier, &ent.SourcePurchaseID, &ent.SourceReferralID, &ent.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert entitlement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit entitlement: %w", err)
	}
	return &ent, true, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listEntitlements(ctx context.Context, q querier, reportID string) ([]domain.Entitlement, error) {
	query := `
		SELECT id, report_id, tier, source_purchase_id, source_referral_id, created_at
		FROM entitlements
		WHERE report_id = $1
		ORDER BY created_at ASC
	`
	rows, err := q.Query(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entitlements []domain.Entitlement
	for rows.Next() {
		var ent domain.Entitlement
		if err := rows.Scan(
			&ent.ID,
			&ent.ReportID,
			&ent.Tier,
			&ent.SourcePurchaseID,
			&ent.SourceReferralID,
			&ent.CreatedAt,
		); err != nil {
			return nil, err
		}
		entitlements = append(entitlements, ent)
	}
	return entitlements, rows.Err()
}
