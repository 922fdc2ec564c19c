package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"invoicer/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "invoicer.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func doc(id, tenant, number string, day int) core.Document {
	return core.Document{
		ID:        id,
		TenantID:  tenant,
		Kind:      core.KindQuote,
		Number:    number,
		Status:    core.StatusDraft,
		IssueDate: time.Date(2025, 4, day, 0, 0, 0, 0, time.UTC),
		Client:    core.Party{Name: "Client"},
		Items:     []core.LineItem{{Description: "Shoot", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(900)}},
	}
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d := doc("q1", "acme", "QUO-0001", 1)
	d.Category = core.CategoryPhotography
	d.Details.Photography = &core.PhotographyDetails{EventName: "Wedding"}
	if err := s.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, d); err == nil {
		t.Fatal("expected error creating the same id twice")
	}

	got, err := s.Get(ctx, "acme", "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Details.Photography == nil || got.Details.Photography.EventName != "Wedding" {
		t.Fatalf("details lost: %+v", got.Details)
	}
	if _, err := s.Get(ctx, "globex", "q1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign tenant Get = %v, want ErrNotFound", err)
	}

	got.Status = core.StatusSent
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ = s.Get(ctx, "acme", "q1"); got.Status != core.StatusSent {
		t.Errorf("status = %s, want sent", got.Status)
	}
	if err := s.Update(ctx, doc("missing", "acme", "QUO-0009", 1)); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, "acme", "q1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "acme", "q1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "acme", "q1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestStore_ListAndNumbers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, id := range []string{"q1", "q2", "q3"} {
		if err := s.Create(ctx, doc(id, "acme", "QUO-000"+id[1:], i+1)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if err := s.Create(ctx, doc("q4", "acme", "QUO-0001", 9)); !errors.Is(err, core.ErrDuplicateNumber) {
		t.Fatalf("duplicate number = %v, want ErrDuplicateNumber", err)
	}
	if err := s.Create(ctx, doc("g1", "globex", "QUO-0001", 9)); err != nil {
		t.Fatalf("Create other tenant: %v", err)
	}

	docs, err := s.List(ctx, core.Filter{TenantID: "acme"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, d := range docs {
		got = append(got, d.ID)
	}
	if strings.Join(got, ",") != "q3,q2,q1" {
		t.Errorf("List order = %v, want newest first", got)
	}

	if docs, _ := s.List(ctx, core.Filter{TenantID: "nobody"}); len(docs) != 0 {
		t.Errorf("unknown tenant returned %d docs", len(docs))
	}
}

func TestStore_Collect(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.Create(ctx, doc("q1", "acme", "QUO-0001", 1))
	_ = s.Create(ctx, doc("q2", "acme", "QUO-0002", 2))
	_ = s.Create(ctx, doc("g1", "globex", "QUO-0001", 1))
	_ = s.Delete(ctx, "acme", "q2")

	expected := `
# HELP invoicer_bolt_documents_total Number of live documents per tenant in the bolt store
# TYPE invoicer_bolt_documents_total gauge
invoicer_bolt_documents_total{tenant="acme"} 1
invoicer_bolt_documents_total{tenant="globex"} 1
`
	if err := testutil.CollectAndCompare(s, strings.NewReader(expected), "invoicer_bolt_documents_total"); err != nil {
		t.Fatal(err)
	}
}

func TestStore_Tenants(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.Create(ctx, doc("q1", "acme", "QUO-0001", 1))
	_ = s.Create(ctx, doc("g1", "globex", "QUO-0001", 1))
	_ = s.Delete(ctx, "globex", "g1")

	tenants, err := s.Tenants(ctx)
	if err != nil {
		t.Fatalf("Tenants: %v", err)
	}
	if strings.Join(tenants, ",") != "acme" {
		t.Errorf("Tenants = %v, want only acme", tenants)
	}
}
