package excel

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate writes a summary sheet followed by one sheet per contract status.
func (g *Generator) Generate(report model.ContractReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	summarySheet := "Summary"
	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	groups := groupByStatus(report.Contracts)
	if err := g.writeSummary(file, summarySheet, report, groups); err != nil {
		return nil, err
	}

	usedNames := map[string]struct{}{summarySheet: {}}
	for _, group := range groups {
		sheetName := buildSheetName(string(group.status), usedNames)
		usedNames[sheetName] = struct{}{}

		if _, err := file.NewSheet(sheetName); err != nil {
			return nil, err
		}
		if err := g.writeDetail(file, sheetName, report, group); err != nil {
			return nil, err
		}
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type statusGroup struct {
	status    model.ContractStatus
	contracts []model.Contract
}

func groupByStatus(contracts []model.Contract) []statusGroup {
	index := make(map[model.ContractStatus]int)
	var groups []statusGroup
	for _, contract := range contracts {
		pos, ok := index[contract.Status]
		if !ok {
			groups = append(groups, statusGroup{status: contract.Status})
			pos = len(groups) - 1
			index[contract.Status] = pos
		}
		groups[pos].contracts = append(groups[pos].contracts, contract)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].status < groups[j].status })
	return groups
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, report model.ContractReport, groups []statusGroup) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	withIssues := 0
	total := decimal.Zero
	for _, contract := range report.Contracts {
		if contract.HasIssues() {
			withIssues++
		}
		total = total.Add(contract.Reward)
	}

	set("A1", "Organization")
	set("B1", report.Handler.Organization.Name)
	set("A2", "Operation mode")
	set("B2", report.Handler.OperationMode.Label())
	set("A3", "Generated at")
	set("B3", formatDateTime(report.GeneratedAt))
	set("A4", "Period start")
	set("B4", formatDate(report.PeriodStart))
	set("A5", "Period end")
	set("B5", formatDate(report.PeriodEnd))
	set("A6", "Contracts")
	set("B6", len(report.Contracts))
	set("A7", "Contracts with issues")
	set("B7", withIssues)
	set("A8", "Total reward, ISK")
	set("B8", total.StringFixed(2))

	tableRow := 10
	set(fmt.Sprintf("A%d", tableRow), "Status")
	set(fmt.Sprintf("B%d", tableRow), "Contracts")
	set(fmt.Sprintf("C%d", tableRow), "Volume, m3")
	for i, group := range groups {
		row := tableRow + 1 + i
		volume := decimal.Zero
		for _, contract := range group.contracts {
			volume = volume.Add(contract.Volume)
		}
		set(fmt.Sprintf("A%d", row), string(group.status))
		set(fmt.Sprintf("B%d", row), len(group.contracts))
		set(fmt.Sprintf("C%d", row), volume.StringFixed(3))
	}

	_ = file.SetColWidth(sheet, "A", "A", 28)
	_ = file.SetColWidth(sheet, "B", "C", 24)
	return nil
}

func (g *Generator) writeDetail(file *excelize.File, sheet string, report model.ContractReport, group statusGroup) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	headers := []string{
		"Contract ID",
		"Issued",
		"Completed",
		"Route",
		"Pricing",
		"Volume, m3",
		"Collateral, ISK",
		"Reward, ISK",
		"Expected, ISK",
		"Issues",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, header)
	}

	for i, contract := range group.contracts {
		row := 2 + i
		set(fmt.Sprintf("A%d", row), contract.ContractID)
		set(fmt.Sprintf("B%d", row), formatDateTime(contract.DateIssued))
		set(fmt.Sprintf("C%d", row), formatOptionalTime(contract.DateCompleted))
		set(fmt.Sprintf("D%d", row), contractRoute(contract, report.FullRouteNames))
		set(fmt.Sprintf("E%d", row), pricingName(contract, report))
		set(fmt.Sprintf("F%d", row), contract.Volume.StringFixed(3))
		set(fmt.Sprintf("G%d", row), contract.Collateral.StringFixed(2))
		set(fmt.Sprintf("H%d", row), contract.Reward.StringFixed(2))
		set(fmt.Sprintf("I%d", row), formatNullDecimal(contract.ExpectedPrice))
		set(fmt.Sprintf("J%d", row), strings.Join(contract.Issues, "; "))
	}

	_ = file.SetColWidth(sheet, "A", "A", 14)
	_ = file.SetColWidth(sheet, "B", "C", 20)
	_ = file.SetColWidth(sheet, "D", "E", 36)
	_ = file.SetColWidth(sheet, "F", "I", 16)
	_ = file.SetColWidth(sheet, "J", "J", 60)
	return nil
}

func contractRoute(contract model.Contract, full bool) string {
	return pricing.RouteName(model.PricingRule{
		StartLocationID: contract.StartLocationID,
		EndLocationID:   contract.EndLocationID,
		StartLocation:   contract.StartLocation,
		EndLocation:     contract.EndLocation,
	}, full)
}

func pricingName(contract model.Contract, report model.ContractReport) string {
	if contract.PricingID == nil {
		return ""
	}
	rule, ok := report.Rules[*contract.PricingID]
	if !ok {
		return contract.PricingID.String()
	}
	return pricing.RouteName(rule, report.FullRouteNames)
}

func buildSheetName(name string, used map[string]struct{}) string {
	base := sanitizeSheetName(name)
	if len(base) > 31 {
		base = base[:31]
	}

	nameCandidate := base
	counter := 2
	for {
		if _, exists := used[nameCandidate]; !exists {
			return nameCandidate
		}
		suffix := fmt.Sprintf("-%d", counter)
		trimmed := base
		if len(trimmed)+len(suffix) > 31 {
			trimmed = trimmed[:31-len(suffix)]
		}
		nameCandidate = trimmed + suffix
		counter++
	}
}

func sanitizeSheetName(value string) string {
	replacer := strings.NewReplacer(
		"[", "-",
		"]", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"/", "-",
		"\\", "-",
	)
	value = strings.TrimSpace(replacer.Replace(value))
	if value == "" {
		return "Contracts"
	}
	return value
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDateTime(*t)
}

func formatNullDecimal(value decimal.NullDecimal) string {
	if !value.Valid {
		return ""
	}
	return value.Decimal.StringFixed(2)
}
