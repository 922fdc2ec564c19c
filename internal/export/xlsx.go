// Package export writes dashboard listings as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"invoicer/internal/core"
)

const (
	SheetDocuments = "Documents"
	SheetSummary   = "Summary"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var documentHeader = []any{
	"Number", "Kind", "Status", "Category", "Client", "Issue date", "Due date",
	"Currency", "Subtotal", "Discount", "Tax", "Grand total", "Paid", "Balance due",
}

// WriteDocumentsXLSX writes one row per document plus a summary sheet with
// the KPIs.
func WriteDocumentsXLSX(w io.Writer, docs []core.Document, kpis core.KPIs) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDocuments); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(SheetDocuments, "A1", &documentHeader); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(documentHeader))
	if err := f.SetCellStyle(SheetDocuments, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	for i, d := range docs {
		t := core.ComputeTotals(d)
		row := []any{
			d.Number, d.Kind.Label(), d.Status.Label(), core.CategoryLabel(d.Category), d.ClientLabel(),
			isoDate(d.IssueDate), isoDate(d.DueDate), d.Currency,
			t.Subtotal.InexactFloat64(), t.Discount.InexactFloat64(), t.Tax.InexactFloat64(),
			t.GrandTotal.InexactFloat64(), t.AmountPaid.InexactFloat64(), t.BalanceDue.InexactFloat64(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetDocuments, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if len(docs) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(documentHeader), len(docs)+1)
		if err := f.SetCellStyle(SheetDocuments, "I2", end, money); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetDocuments, "A", "A", 14)
	_ = f.SetColWidth(SheetDocuments, "E", "E", 28)
	_ = f.SetPanes(SheetDocuments, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Metric", "Value"},
		{"Documents", kpis.Documents},
		{"Total invoiced", kpis.TotalInvoiced.InexactFloat64()},
		{"Collected", kpis.Collected.InexactFloat64()},
		{"Outstanding", kpis.Outstanding.InexactFloat64()},
		{"Overdue amount", kpis.OverdueAmount.InexactFloat64()},
		{"Overdue invoices", kpis.OverdueCount},
		{"Open quotes", kpis.OpenQuotes},
		{"Open quotes value", kpis.OpenQuotesValue.InexactFloat64()},
		{"Acceptance rate %", kpis.AcceptanceRate},
		{"Avg days to pay", kpis.AvgDaysToPay},
	}
	for _, m := range kpis.RevenueByMonth {
		summary = append(summary, []any{"Revenue " + m.Month, m.Amount.InexactFloat64()})
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetCellStyle(SheetSummary, "A1", "B1", bold)
	_ = f.SetColWidth(SheetSummary, "A", "A", 22)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
