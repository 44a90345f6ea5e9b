package interfaces

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"microgrid-cloud/internal/billing/domain"
)

// lineItemNames returns line item names in a stable order so PDF/XLSX
// exports don't reorder rows between runs (map iteration order is random).
func lineItemNames(items map[string]decimal.Decimal) []string {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildBillPDF renders a minimal PDF for a computed billing month.
func BuildBillPDF(customerName string, result domain.BillResult) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Billing Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Customer: %s", customerName))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Billing Month: %s", result.Month.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %04d-%02d-%02d to %04d-%02d-%02d",
		result.PeriodStartLocal.Year, result.PeriodStartLocal.Month, result.PeriodStartLocal.Day,
		result.PeriodEndLocal.Year, result.PeriodEndLocal.Month, result.PeriodEndLocal.Day))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total (USD): %s", result.TotalUSD.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(100, 6, "Line Item", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 6, "Amount (USD)", "1", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, name := range lineItemNames(result.LineItems) {
		pdf.CellFormat(100, 6, name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, result.LineItems[name].StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if result.Gaps.MissingCount > 0 {
		pdf.Ln(6)
		pdf.Cell(0, 6, fmt.Sprintf("Missing intervals repaired: %d", result.Gaps.MissingCount))
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillXLSX renders a minimal XLSX for a computed billing month.
func BuildBillXLSX(customerName string, result domain.BillResult) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	itemsSheet := "line_items"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(itemsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Billing Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Customer")
	_ = f.SetCellValue(summarySheet, "B3", customerName)
	_ = f.SetCellValue(summarySheet, "A4", "Billing Month")
	_ = f.SetCellValue(summarySheet, "B4", result.Month.String())
	_ = f.SetCellValue(summarySheet, "A5", "Total (USD)")
	totalFloat, _ := result.TotalUSD.Float64()
	_ = f.SetCellValue(summarySheet, "B5", totalFloat)
	_ = f.SetCellValue(summarySheet, "A6", "Missing Intervals Repaired")
	_ = f.SetCellValue(summarySheet, "B6", result.Gaps.MissingCount)

	_ = f.SetCellValue(itemsSheet, "A1", "Line Item")
	_ = f.SetCellValue(itemsSheet, "B1", "Amount (USD)")
	for i, name := range lineItemNames(result.LineItems) {
		row := i + 2
		amountFloat, _ := result.LineItems[name].Float64()
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), name)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), amountFloat)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
