package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"invoicer/internal/core"
)

func TestWriteDocumentsXLSX(t *testing.T) {
	docs := []core.Document{{
		Kind:      core.KindInvoice,
		Number:    "INV-0001",
		Status:    core.StatusPartiallyPaid,
		Category:  core.CategoryITServices,
		Currency:  "USD",
		IssueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Client:    core.Party{Name: "Globex"},
		Items:     []core.LineItem{{Description: "Support", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(125)}},
		Summary:   core.Summary{AmountPaid: decimal.NewFromInt(200)},
	}}
	kpis := core.ComputeKPIs(docs, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	if err := WriteDocumentsXLSX(&buf, docs, kpis); err != nil {
		t.Fatalf("WriteDocumentsXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !cmp.Equal(got, []string{SheetDocuments, SheetSummary}) {
		t.Errorf("sheets = %v", got)
	}
	rows, err := f.GetRows(SheetDocuments)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "Number" || rows[1][0] != "INV-0001" {
		t.Errorf("unexpected first column: %q %q", rows[0][0], rows[1][0])
	}
	if rows[1][3] != "IT Services" || rows[1][5] != "2025-03-01" {
		t.Errorf("category/date = %q %q", rows[1][3], rows[1][5])
	}
	raw, err := f.GetCellValue(SheetDocuments, "N2", excelize.Options{RawCellValue: true})
	if err != nil || raw != "300" {
		t.Errorf("balance due = %q, %v; want 300", raw, err)
	}

	summary, _ := f.GetRows(SheetSummary)
	if len(summary) < 2 || summary[1][0] != "Documents" || summary[1][1] != "1" {
		t.Errorf("summary = %v", summary)
	}
}

func TestWriteDocumentsXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocumentsXLSX(&buf, nil, core.KPIs{}); err != nil {
		t.Fatalf("WriteDocumentsXLSX: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(SheetDocuments)
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}
