/**
 * @description
 * Data access layer for the income-service monetization tables: purchases,
 * entitlements, referrals and referral events.
 */
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/autolytiq/income-service/internal/domain"
)

var (
	ErrPurchaseNotFound       = errors.New("purchase not found")
	ErrReferralNotFound       = errors.New("referral not found")
	ErrReferralCodeTaken      = errors.New("referral code already taken")
	ErrReferralAlreadyTracked = errors.New("referral already tracked for this report")
	ErrDuplicatePurchase      = errors.New("purchase already recorded for this provider reference")
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Repository handles database operations for monetization records.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Migrate applies every pending migration and returns the versions it ran.
func (r *Repository) Migrate(ctx context.Context) ([]int64, error) {
	db := stdlib.OpenDBFromPool(r.db)
	defer db.Close()

	provider, err := newMigrationProvider(db)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, result := range results {
		applied = append(applied, result.Source.Version)
	}
	return applied, nil
}

func newMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return provider, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// highestTier picks the highest tier among entitlements. Ties cannot occur
// because (report_id, tier) is unique.
func highestTier(entitlements []domain.Entitlement) *domain.Entitlement {
	var best *domain.Entitlement
	for i := range entitlements {
		if best == nil || domain.CompareTiers(entitlements[i].Tier, best.Tier) > 0 {
			best = &entitlements[i]
		}
	}
	return best
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newID() string {
	return uuid.NewString()
}
