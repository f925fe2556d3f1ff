/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	logger   *zap.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance running the purchase expiry
// job on schedule.
func NewScheduler(jobs *Jobs, logger *zap.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.RunPurchaseExpiry); err != nil {
		s.logger.Error("failed to schedule purchase expiry job", zap.String("schedule", s.schedule), zap.Error(err))
		return err
	}
	s.logger.Info("scheduled purchase expiry job", zap.String("schedule", s.schedule))

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
