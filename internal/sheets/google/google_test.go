package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"invoicer/internal/core"
)

// fakeSheet serves the subset of the Sheets values API the client uses.
type fakeSheet struct {
	mu      sync.Mutex
	rows    [][]any
	updates []string
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rng, ok := strings.Cut(r.URL.Path, "/values/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		col := make([][]any, len(f.rows))
		for i, row := range f.rows {
			col[i] = row[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": col})
	case http.MethodPut:
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates = append(f.updates, rng)
		f.apply(rng, vr.Values[0])
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})
	default:
		http.Error(w, "method", http.StatusMethodNotAllowed)
	}
}

// apply writes values at the start cell of a range like Ledger!A3:L3.
func (f *fakeSheet) apply(rng string, values []any) {
	_, cells, _ := strings.Cut(rng, "!")
	start, _, _ := strings.Cut(cells, ":")
	col := int(start[0] - 'A')
	var row int
	for _, ch := range start[1:] {
		row = row*10 + int(ch-'0')
	}
	for len(f.rows) < row {
		f.rows = append(f.rows, []any{""})
	}
	r := f.rows[row-1]
	for len(r) < col+len(values) {
		r = append(r, "")
	}
	copy(r[col:], values)
	f.rows[row-1] = r
}

func newTestClient(t *testing.T, f *fakeSheet) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, "sheet-1", "")
}

func ledgerDoc(id, number string) core.Document {
	return core.Document{
		ID:        id,
		TenantID:  "acme",
		Kind:      core.KindInvoice,
		Number:    number,
		Status:    core.StatusSent,
		Currency:  "USD",
		IssueDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Client:    core.Party{Name: "Globex"},
		Items:     []core.LineItem{{Description: "Work", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(40)}},
		UpdatedAt: time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestUpsertDocument(t *testing.T) {
	f := &fakeSheet{}
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.UpsertDocument(ctx, ledgerDoc("d1", "INV-0001")); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := c.UpsertDocument(ctx, ledgerDoc("d2", "INV-0002")); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	d1 := ledgerDoc("d1", "INV-0001")
	d1.Status = core.StatusPaid
	if err := c.UpsertDocument(ctx, d1); err != nil {
		t.Fatalf("update upsert: %v", err)
	}

	want := []string{"Ledger!A1:L1", "Ledger!A2:L2", "Ledger!A3:L3", "Ledger!A2:L2"}
	if diff := cmp.Diff(want, f.updates); diff != "" {
		t.Errorf("updated ranges (-want +got):\n%s", diff)
	}
	if len(f.rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(f.rows))
	}
	if f.rows[1][4] != "paid" || f.rows[1][9] != "120.00" {
		t.Errorf("row 2 = %v", f.rows[1])
	}
}

func TestRemoveDocument(t *testing.T) {
	f := &fakeSheet{}
	c := newTestClient(t, f)
	ctx := context.Background()
	_ = c.UpsertDocument(ctx, ledgerDoc("d1", "INV-0001"))

	if err := c.RemoveDocument(ctx, "acme", "d1"); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if f.rows[1][4] != "deleted" {
		t.Errorf("status cell = %v, want deleted", f.rows[1][4])
	}
	n := len(f.updates)
	if err := c.RemoveDocument(ctx, "acme", "missing"); err != nil {
		t.Fatalf("RemoveDocument missing: %v", err)
	}
	if len(f.updates) != n {
		t.Error("missing document should not write")
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error without spreadsheet id")
	}
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("missing credentials error = %v", err)
	}
}

func TestFindRow(t *testing.T) {
	ids := []string{"Document ID", "a", "", "b"}
	if got := findRow(ids, "b"); got != 4 {
		t.Errorf("findRow(b) = %d, want 4", got)
	}
	if got := findRow(ids, "Document ID"); got != 0 {
		t.Errorf("header must not match, got %d", got)
	}
}
