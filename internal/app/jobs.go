/**
 * @description
 * Scheduled job implementations for the income-service.
 */
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/pkg/rabbitmq"
)

// expiryGrace keeps the job from racing the provider's own expiry webhook.
const expiryGrace = 5 * time.Minute

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	purchases  PurchaseRepository
	publisher  Publisher
	exchange   string
	sessionTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(purchases PurchaseRepository, publisher Publisher, exchange string, sessionTTL time.Duration, logger *zap.Logger) *Jobs {
	return &Jobs{
		purchases:  purchases,
		publisher:  publisher,
		exchange:   exchange,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// ExpireStalePurchases marks pending purchases whose checkout session can no
// longer be paid as expired, so they stop blocking new checkouts.
func (j *Jobs) ExpireStalePurchases(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-(j.sessionTTL + expiryGrace))
	expired, err := j.purchases.ExpireStalePendingPurchases(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for i := range expired {
		p := expired[i]
		event := domain.PurchaseStatusEvent{
			PurchaseID:  p.ID,
			ReportID:    p.ReportID,
			Tier:        p.Tier,
			Status:      domain.PurchaseExpired,
			ProviderRef: p.ProviderRef,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			OccurredAt:  j.now().UTC(),
		}
		if err := j.publisher.Publish(ctx, j.exchange, rabbitmq.RoutingPurchaseExpired, event); err != nil {
			j.logger.Warn("failed to publish purchase.expired event", zap.String("purchase_id", p.ID), zap.Error(err))
		}
	}
	return len(expired), nil
}

// RunPurchaseExpiry is the cron entry point for ExpireStalePurchases.
func (j *Jobs) RunPurchaseExpiry() {
	j.logger.Info("starting stale purchase expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := j.ExpireStalePurchases(ctx)
	if err != nil {
		j.logger.Error("failed to expire stale purchases", zap.Error(err))
		return
	}
	if count == 0 {
		j.logger.Info("no stale purchases to expire")
		return
	}
	j.logger.Info("stale purchase expiry job finished", zap.Int("expired", count))
}
