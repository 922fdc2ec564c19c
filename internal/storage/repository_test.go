package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoicer/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "invoicer.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testDoc(id, tenant, number string, issue time.Time) core.Document {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return core.Document{
		ID:        id,
		TenantID:  tenant,
		Kind:      core.KindInvoice,
		Number:    number,
		Status:    core.StatusDraft,
		Currency:  "USD",
		IssueDate: issue,
		Client:    core.Party{Name: "Client " + id},
		Items: []core.LineItem{
			{Description: "Work", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("12.50")},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	d := testDoc("a1", "acme", "INV-0001", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	d.Category = core.CategoryLegal
	d.Details.Legal = &core.LegalDetails{CaseNumber: "2025-CV-42"}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, "acme", "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Number != "INV-0001" || got.Details.Legal == nil || got.Details.Legal.CaseNumber != "2025-CV-42" {
		t.Fatalf("unexpected document: %+v", got)
	}
	if !got.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("unit price = %s, want 12.5", got.Items[0].UnitPrice)
	}

	if _, err := repo.Get(ctx, "globex", "a1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign tenant Get = %v, want ErrNotFound", err)
	}

	got.Status = core.StatusSent
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = repo.Get(ctx, "acme", "a1")
	if got.Status != core.StatusSent {
		t.Errorf("status = %s, want sent", got.Status)
	}

	foreign := got
	foreign.TenantID = "globex"
	if err := repo.Update(ctx, foreign); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign tenant Update = %v, want ErrNotFound", err)
	}

	if err := repo.Delete(ctx, "acme", "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "acme", "a1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "acme", "a1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}

	all, err := repo.List(ctx, core.Filter{TenantID: "acme", IncludeDeleted: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || !all[0].Deleted {
		t.Fatalf("expected one deleted document, got %+v", all)
	}
}

func TestSQLiteRepository_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	issue := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, testDoc("a1", "acme", "INV-0001", issue)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, testDoc("a2", "acme", "INV-0001", issue)); !errors.Is(err, core.ErrDuplicateNumber) {
		t.Fatalf("duplicate Create = %v, want ErrDuplicateNumber", err)
	}
	// other tenants have their own numbering
	if err := repo.Create(ctx, testDoc("b1", "globex", "INV-0001", issue)); err != nil {
		t.Fatalf("Create other tenant: %v", err)
	}
	// numbers of deleted documents can be reused
	if err := repo.Delete(ctx, "acme", "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Create(ctx, testDoc("a3", "acme", "INV-0001", issue)); err != nil {
		t.Fatalf("Create after delete: %v", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for i, num := range []string{"INV-0001", "INV-0002", "INV-0003"} {
		d := testDoc(num, "acme", num, time.Date(2025, 1, 10*(i+1), 0, 0, 0, 0, time.UTC))
		if i == 1 {
			d.Status = core.StatusSent
		}
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create %s: %v", num, err)
		}
	}
	if err := repo.Create(ctx, testDoc("x", "globex", "INV-0009", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	docs, err := repo.List(ctx, core.Filter{TenantID: "acme"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 3 || docs[0].Number != "INV-0003" || docs[2].Number != "INV-0001" {
		t.Fatalf("expected newest first for tenant acme, got %d docs", len(docs))
	}

	sent, err := repo.List(ctx, core.Filter{TenantID: "acme", Statuses: []core.Status{core.StatusSent}})
	if err != nil {
		t.Fatalf("List sent: %v", err)
	}
	if len(sent) != 1 || sent[0].Number != "INV-0002" {
		t.Fatalf("unexpected sent documents: %+v", sent)
	}

	if _, err := repo.List(ctx, core.Filter{}); !errors.Is(err, core.ErrMissingTenant) {
		t.Errorf("List without tenant = %v, want ErrMissingTenant", err)
	}

	tenants, err := repo.Tenants(ctx)
	if err != nil {
		t.Fatalf("Tenants: %v", err)
	}
	if len(tenants) != 2 || tenants[0] != "acme" || tenants[1] != "globex" {
		t.Errorf("Tenants = %v, want [acme globex]", tenants)
	}
}

func TestSQLiteRepository_LedgerSync(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	issue := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	d := testDoc("a1", "acme", "INV-0001", issue)
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	pending, err := repo.ListPendingLedgerSync(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingLedgerSync: %v", err)
	}
	if len(pending) != 1 || pending[0].Version != 1 || pending[0].Deleted {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	if err := repo.MarkLedgerSyncError(ctx, "a1", errors.New("quota exceeded")); err != nil {
		t.Fatalf("MarkLedgerSyncError: %v", err)
	}
	if pending, _ = repo.ListPendingLedgerSync(ctx, 10); len(pending) != 1 {
		t.Fatalf("failed sync should stay pending, got %d", len(pending))
	}

	if err := repo.MarkLedgerSynced(ctx, "a1", 1); err != nil {
		t.Fatalf("MarkLedgerSynced: %v", err)
	}
	if pending, _ = repo.ListPendingLedgerSync(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", pending)
	}

	if err := repo.Delete(ctx, "acme", "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	pending, _ = repo.ListPendingLedgerSync(ctx, 10)
	if len(pending) != 1 || !pending[0].Deleted || pending[0].Version != 2 {
		t.Fatalf("deleted document should be pending removal, got %+v", pending)
	}
}
