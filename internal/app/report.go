package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/domain"
	"github.com/autolytiq/income-service/internal/income"
)

// ReportRequest asks for the income report of a report id. Any tier the
// client claims is ignored; access always comes from the resolver.
type ReportRequest struct {
	Identity   ResolveInput
	Projection ProjectRequest
	Streams    []domain.IncomeStream
}

// PremiumSections is the premium toolkit content.
type PremiumSections struct {
	Streams           domain.StreamSummary       `json:"streams"`
	ReliableStability income.StabilityAssessment `json:"reliableStability"`
}

// IncomeReport is the tier-gated report. Pro and Premium are nil unless the
// resolver allows them.
type IncomeReport struct {
	ReportID    string                   `json:"reportId"`
	Projection  domain.ProjectionView    `json:"projection"`
	Entitlement domain.ClientEntitlement `json:"entitlement"`
	Pro         *income.ProSections      `json:"pro,omitempty"`
	Premium     *PremiumSections         `json:"premium,omitempty"`
}

// ReportService assembles tier-gated income reports.
type ReportService struct {
	income       *IncomeService
	entitlements *EntitlementService
	logger       *zap.Logger
}

// NewReportService creates a new report service.
func NewReportService(incomeSvc *IncomeService, entitlements *EntitlementService, logger *zap.Logger) *ReportService {
	return &ReportService{income: incomeSvc, entitlements: entitlements, logger: logger}
}

// GenerateReport builds the base report and adds the sections the report's
// tier unlocks. When the tier cannot be resolved no report is returned.
func (s *ReportService) GenerateReport(ctx context.Context, req ReportRequest) (*IncomeReport, error) {
	result, err := s.income.Project(req.Projection)
	if err != nil {
		return nil, err
	}
	streams, err := income.WithCalculatorStream(result, req.Streams)
	if err != nil {
		return nil, err
	}

	entitlement, err := s.entitlements.GetEntitlementForClient(ctx, req.Identity)
	if err != nil {
		s.logger.Error("report withheld: entitlement unavailable", zap.String("report_id", req.Identity.ReportID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEntitlementUnavailable, err)
	}

	report := &IncomeReport{
		ReportID:    req.Identity.ReportID,
		Projection:  income.View(result),
		Entitlement: *entitlement,
	}

	if entitlement.HasProReport {
		pro := income.BuildProSections(result.AnnualRate, result.DaysWorked)
		report.Pro = &pro
	}

	if entitlement.HasPremiumToolkit {
		summary, err := s.income.SummarizeStreams(streams)
		if err != nil {
			return nil, err
		}
		report.Premium = &PremiumSections{
			Streams:           summary,
			ReliableStability: income.AssessStability(decimal.NewFromInt(summary.ReliableAnnual), result.DaysWorked),
		}
	}

	s.logger.Debug("report generated", zap.String("report_id", report.ReportID), zap.String("tier", string(entitlement.Tier)))
	return report, nil
}
