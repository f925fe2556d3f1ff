package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autolytiq/income-service/internal/domain"
)

const referralColumns = `id, code, owner_report_id, owner_user_id, owner_email, count, reward_granted, created_at`

// CreateReferral stores a referral for its owner report. When the report
// already owns a referral that one is returned with created=false. A clash on
// the code itself yields ErrReferralCodeTaken so the caller can retry with a
// fresh code.
func (r *Repository) CreateReferral(ctx context.Context, referral domain.Referral) (*domain.Referral, bool, error) {
	if referral.ID == "" {
		referral.ID = newID()
	}

	query := `
		INSERT INTO referrals (id, code, owner_report_id, owner_user_id, owner_email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_report_id) DO NOTHING
		RETURNING ` + referralColumns
	created, err := scanReferral(r.db.QueryRow(ctx, query,
		referral.ID,
		referral.Code,
		referral.OwnerReportID,
		referral.OwnerUserID,
		referral.OwnerEmail,
	))
	if err == nil {
		return created, true, nil
	}
	if isUniqueViolation(err, "referrals_code_key") {
		return nil, false, ErrReferralCodeTaken
	}
	if err != pgx.ErrNoRows {
		return nil, false, fmt.Errorf("failed to insert referral: %w", err)
	}

	existing, err := r.FindReferralByReportID(ctx, referral.OwnerReportID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindReferralByCode looks a referral up by its public code.
func (r *Repository) FindReferralByCode(ctx context.Context, code string) (*domain.Referral, error) {
	return r.findReferral(ctx, "code", code)
}

// FindReferralByReportID returns the referral owned by a report.
func (r *Repository) FindReferralByReportID(ctx context.Context, reportID string) (*domain.Referral, error) {
	return r.findReferral(ctx, "owner_report_id", reportID)
}

func (r *Repository) findReferral(ctx context.Context, column, value string) (*domain.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE ` + column + ` = $1`
	referral, err := scanReferral(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return referral, nil
}

// IsDuplicateReferral reports whether newReportID was already referred, or
// whether the same fingerprint used code after since.
func (r *Repository) IsDuplicateReferral(ctx context.Context, code, newReportID string, fingerprintHash *string, since time.Time) (bool, error) {
	var duplicate bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM referral_events WHERE new_report_id = $1
		) OR (
			$3::TEXT IS NOT NULL AND EXISTS (
				SELECT 1 FROM referral_events
				WHERE code = $2 AND fingerprint_hash = $3 AND created_at > $4
			)
		)
	`, newReportID, code, fingerprintHash, since).Scan(&duplicate)
	if err != nil {
		return false, err
	}
	return duplicate, nil
}

// RecordReferralEvent stores a conversion and increments the referral count in
// one transaction, returning the updated referral.
func (r *Repository) RecordReferralEvent(ctx context.Context, event domain.ReferralEvent) (*domain.Referral, error) {
	if event.ID == "" {
		event.ID = newID()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO referral_events (id, referral_id, code, new_report_id, fingerprint_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.ReferralID, event.Code, event.NewReportID, event.FingerprintHash)
	if err != nil {
		if isUniqueViolation(err, "idx_referral_events_new_report") {
			return nil, ErrReferralAlreadyTracked
		}
		return nil, fmt.Errorf("failed to insert referral event: %w", err)
	}

	updated, err := scanReferral(tx.QueryRow(ctx, `
		UPDATE referrals SET count = count + 1
		WHERE id = $1
		RETURNING `+referralColumns, event.ReferralID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to increment referral count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit referral event: %w", err)
	}
	return updated, nil
}

// MarkReferralRewardGranted flips reward_granted once. It reports false when
// the reward had already been granted.
func (r *Repository) MarkReferralRewardGranted(ctx context.Context, referralID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		"UPDATE referrals SET reward_granted = TRUE WHERE id = $1 AND reward_granted = FALSE",
		referralID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral reward: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanReferral(row pgx.Row) (*domain.Referral, error) {
	var ref domain.Referral
	if err := row.Scan(
		&ref.ID,
		&ref.Code,
		&ref.OwnerReportID,
		&ref.OwnerUserID,
		&ref.OwnerEmail,
		&ref.Count,
		&ref.RewardGranted,
		&ref.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &ref, nil
}
