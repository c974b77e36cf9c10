package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
)

type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

// Generate renders the active pricing rules as a price list.
func (g *Generator) Generate(sheet model.PricingSheet) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Courier pricing - %s", sheet.Handler.Organization.Name)), "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, tr(sheet.Handler.AvailabilityText()), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", formatDate(sheet.GeneratedAt)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	headers := []string{"Route", "Price", "Volume, m3", "Collateral, ISK", "Days", "Details"}
	colWidths := []float64{70, 55, 35, 45, 20, 42}
	drawTableRow(pdf, g.fontName, headers, colWidths, true)

	rules := 0
	for _, rule := range sheet.Rules {
		if !rule.IsActive {
			continue
		}
		rules++
		row := []string{
			tr(pricing.RouteName(rule, sheet.FullRouteNames)),
			priceText(rule),
			rangeText(rule.VolumeMin, rule.VolumeMax),
			rangeText(rule.CollateralMin, rule.CollateralMax),
			daysText(rule),
			tr(safeValue(rule.Details)),
		}
		drawTableRow(pdf, g.fontName, row, colWidths, false)
	}
	if rules == 0 {
		pdf.SetFont(g.fontName, "", 11)
		pdf.CellFormat(0, 8, "No active pricing", "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 9)
	for i, col := range cols {
		align := "L"
		if i > 0 && i < 5 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

// priceText summarises the price components, e.g. "500 + 50/m3 + 2%, min 1,000".
func priceText(rule model.PricingRule) string {
	var parts []string
	if rule.PriceBase.Valid {
		parts = append(parts, pricing.FormatAmount(rule.PriceBase.Decimal))
	}
	if rule.PricePerVolume.Valid {
		parts = append(parts, rule.PricePerVolume.Decimal.String()+"/m3")
	}
	if rule.PricePerCollateralPercent.Valid {
		parts = append(parts, rule.PricePerCollateralPercent.Decimal.String()+"%")
	}
	text := strings.Join(parts, " + ")
	if rule.PriceMin.Valid {
		minimum := "min " + pricing.FormatAmount(rule.PriceMin.Decimal)
		if text == "" {
			return minimum
		}
		text += ", " + minimum
	}
	return text
}

func rangeText(lower, upper decimal.NullDecimal) string {
	switch {
	case lower.Valid && upper.Valid:
		return pricing.FormatAmount(lower.Decimal) + " - " + pricing.FormatAmount(upper.Decimal)
	case lower.Valid:
		return ">= " + pricing.FormatAmount(lower.Decimal)
	case upper.Valid:
		return "<= " + pricing.FormatAmount(upper.Decimal)
	default:
		return "-"
	}
}

func daysText(rule model.PricingRule) string {
	if rule.DaysToComplete == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *rule.DaysToComplete)
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
