package app

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/income"
)

// ProjectRequest is the raw calculator form. MonthlyIncome, when set,
// replaces the year-to-date fields.
type ProjectRequest struct {
	YTDEarnings   string `json:"ytdIncome"`
	StartDate     string `json:"startDate"`
	AsOfDate      string `json:"checkDate"`
	MonthlyIncome string `json:"monthlyIncome"`
}

// SnapshotResult is a normalized snapshot with its combined summary. Clients
// persist Snapshot under StorageKey.
type SnapshotResult struct {
	StorageKey string               `json:"storageKey"`
	Snapshot   income.Snapshot      `json:"snapshot"`
	Summary    domain.StreamSummary `json:"summary"`
}

// IncomeService exposes the projection engine to the API.
type IncomeService struct {
	weights income.StabilityWeights
	logger  *zap.Logger
	now     func() time.Time
}

// NewIncomeService creates a new income service using weights for reliable
// income.
func NewIncomeService(weights income.StabilityWeights, logger *zap.Logger) *IncomeService {
	if weights == nil {
		weights = income.DefaultStabilityWeights
	}
	return &IncomeService{weights: weights, logger: logger, now: time.Now}
}

// Project parses the form and projects annual income.
func (s *IncomeService) Project(req ProjectRequest) (domain.ProjectionResult, error) {
	if strings.TrimSpace(req.MonthlyIncome) != "" {
		return income.ParseMonthly(req.MonthlyIncome)
	}
	input, err := income.ParseInput(req.YTDEarnings, req.StartDate, req.AsOfDate, s.now())
	if err != nil {
		return domain.ProjectionResult{}, err
	}
	return income.Project(input, s.now())
}

// SummarizeStreams totals a stream list.
func (s *IncomeService) SummarizeStreams(streams []domain.IncomeStream) (domain.StreamSummary, error) {
	summary, err := income.Summarize(streams, s.weights)
	if err != nil {
		s.logStreamError(err, len(streams))
		return domain.StreamSummary{}, err
	}
	return summary, nil
}

// NormalizeSnapshot validates a stored client snapshot and summarizes the
// combined stream list, calculator projection included.
func (s *IncomeService) NormalizeSnapshot(raw []byte) (*SnapshotResult, error) {
	snapshot, err := income.DecodeSnapshot(raw)
	if err != nil {
		s.logStreamError(err, 0)
		return nil, err
	}
	streams, err := snapshot.CombinedStreams(s.now())
	if err != nil {
		return nil, err
	}
	summary, err := s.SummarizeStreams(streams)
	if err != nil {
		return nil, err
	}
	return &SnapshotResult{StorageKey: income.SnapshotStorageKey, Snapshot: snapshot, Summary: summary}, nil
}

func (s *IncomeService) logStreamError(err error, count int) {
	if errors.Is(err, income.ErrUnknownFrequency) {
		s.logger.Error("income stream with unknown frequency", zap.Int("stream_count", count), zap.Error(err))
	}
}
