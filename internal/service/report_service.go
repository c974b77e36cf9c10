package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/freight/internal/model"
)

type ExcelGenerator interface {
	Generate(report model.ContractReport) ([]byte, error)
}

type PDFGenerator interface {
	Generate(sheet model.PricingSheet) ([]byte, error)
}

type ReportService struct {
	contracts      ContractStore
	rules          PricingStore
	handlers       HandlerStore
	excel          ExcelGenerator
	pdf            PDFGenerator
	fullRouteNames bool
	now            func() time.Time
}

type ExportContractsInput struct {
	Statuses    []model.ContractStatus
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type ExportResult struct {
	FileName string
	Content  []byte
}

func NewReportService(
	contracts ContractStore,
	rules PricingStore,
	handlers HandlerStore,
	excel ExcelGenerator,
	pdf PDFGenerator,
	fullRouteNames bool,
) *ReportService {
	return &ReportService{
		contracts:      contracts,
		rules:          rules,
		handlers:       handlers,
		excel:          excel,
		pdf:            pdf,
		fullRouteNames: fullRouteNames,
		now:            time.Now,
	}
}

// ExportContracts builds the contracts spreadsheet. The period is optional
// and filters on the issue date, both ends inclusive.
func (s *ReportService) ExportContracts(ctx context.Context, input ExportContractsInput) (*ExportResult, error) {
	periodStart := dateOnly(input.PeriodStart)
	periodEnd := dateOnly(input.PeriodEnd)
	if !periodStart.IsZero() && !periodEnd.IsZero() && periodStart.After(periodEnd) {
		return nil, fmt.Errorf("%w: period_start must be before or equal to period_end", ErrInvalidInput)
	}

	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}
	contracts, err := s.contracts.ListContracts(ctx, handler.ID, input.Statuses)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListPricingRules(ctx, handler.ID)
	if err != nil {
		return nil, err
	}

	filtered := contracts[:0:0]
	for _, contract := range contracts {
		if !periodStart.IsZero() && contract.DateIssued.Before(periodStart) {
			continue
		}
		if !periodEnd.IsZero() && !contract.DateIssued.Before(periodEnd.Add(24*time.Hour)) {
			continue
		}
		filtered = append(filtered, contract)
	}

	ruleIndex := make(map[uuid.UUID]model.PricingRule, len(rules))
	for _, rule := range rules {
		ruleIndex[rule.ID] = rule
	}

	report := model.ContractReport{
		Handler:        *handler,
		GeneratedAt:    s.now(),
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Contracts:      filtered,
		Rules:          ruleIndex,
		FullRouteNames: s.fullRouteNames,
	}
	content, err := s.excel.Generate(report)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: buildFileName("contracts", handler.Organization.Name, report.GeneratedAt, "xlsx"),
		Content:  content,
	}, nil
}

func (s *ReportService) ExportPricing(ctx context.Context) (*ExportResult, error) {
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListPricingRules(ctx, handler.ID)
	if err != nil {
		return nil, err
	}

	sheet := model.PricingSheet{
		Handler:        *handler,
		GeneratedAt:    s.now(),
		Rules:          rules,
		FullRouteNames: s.fullRouteNames,
	}
	content, err := s.pdf.Generate(sheet)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: buildFileName("pricing", handler.Organization.Name, sheet.GeneratedAt, "pdf"),
		Content:  content,
	}, nil
}

func buildFileName(kind, organization string, at time.Time, ext string) string {
	target := sanitizeFileName(organization)
	if target == "" {
		target = "freight"
	}
	return fmt.Sprintf("%s-%s-%s.%s", kind, target, at.UTC().Format("20060102"), ext)
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z':
			result = append(result, r)
		case r >= 'A' && r <= 'Z':
			result = append(result, r)
		case r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}
