package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoicer/internal/core"
	"invoicer/internal/ports"
	"invoicer/internal/storage/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []ports.Event
	err    error
}

func (f *fakePublisher) PublishDocumentEvent(_ context.Context, ev ports.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

// localPublisher queues events in-process and may have no delivery handler.
type localPublisher struct {
	fakePublisher
	delivers bool
}

func (l *localPublisher) CanDeliver() bool { return l.delivers }

type countingInvalidator map[string]int

func (c countingInvalidator) Invalidate(tenantID string) { c[tenantID]++ }

var fixedNow = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*DocumentService, *memory.Store, *fakePublisher, countingInvalidator) {
	t.Helper()
	store := memory.New()
	pub := &fakePublisher{}
	inv := countingInvalidator{}
	svc := NewDocumentService(store, pub, inv)
	svc.now = func() time.Time { return fixedNow }
	n := 0
	svc.newID = func() string { n++; return fmt.Sprintf("doc-%d", n) }
	return svc, store, pub, inv
}

func draft(kind core.Kind) core.Document {
	return core.Document{
		Kind:      kind,
		Currency:  "USD",
		IssueDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Client:    core.Party{Name: "Globex", Email: "ap@globex.test"},
		Items: []core.LineItem{
			{Description: "Consulting", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(150)},
		},
	}
}

func TestDocumentService_Create(t *testing.T) {
	ctx := context.Background()
	svc, _, pub, inv := newTestService(t)

	first, err := svc.Create(ctx, "acme", draft(core.KindInvoice))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.ID != "doc-1" || first.TenantID != "acme" || first.Status != core.StatusDraft {
		t.Errorf("unexpected identity: %+v", first)
	}
	if first.Number != "INV-0001" {
		t.Errorf("Number = %q, want INV-0001", first.Number)
	}
	if !first.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v", first.CreatedAt)
	}

	second, err := svc.Create(ctx, "acme", draft(core.KindInvoice))
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	if second.Number != "INV-0002" {
		t.Errorf("second Number = %q, want INV-0002", second.Number)
	}

	quote, _ := svc.Create(ctx, "acme", draft(core.KindQuote))
	if quote.Number != "QUO-0001" {
		t.Errorf("quote Number = %q, want QUO-0001", quote.Number)
	}

	if got := pub.types(); len(got) != 3 || got[0] != ports.EventDocumentCreated {
		t.Errorf("events = %v", got)
	}
	if inv["acme"] != 3 {
		t.Errorf("invalidations = %d, want 3", inv["acme"])
	}
}

func TestDocumentService_CreateErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	tests := []struct {
		name   string
		tenant string
		mutate func(d *core.Document)
		want   error
	}{
		{"missing tenant", "", func(d *core.Document) {}, core.ErrMissingTenant},
		{"bad kind", "acme", func(d *core.Document) { d.Kind = "receipt" }, core.ErrInvalidKind},
		{"no items", "acme", func(d *core.Document) { d.Items = nil }, core.ErrNoItems},
		{"no client", "acme", func(d *core.Document) { d.Client.Name = "" }, core.ErrEmptyClient},
		{"status not allowed", "acme", func(d *core.Document) { d.Status = core.StatusActive }, core.ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft(core.KindInvoice)
			tt.mutate(&d)
			if _, err := svc.Create(ctx, tt.tenant, d); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}

	d := draft(core.KindInvoice)
	d.Number = "INV-0100"
	if _, err := svc.Create(ctx, "acme", d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, "acme", d); !errors.Is(err, core.ErrDuplicateNumber) {
		t.Errorf("duplicate number error = %v", err)
	}
}

func TestDocumentService_UpdateKeepsLifecycleFields(t *testing.T) {
	ctx := context.Background()
	svc, _, pub, _ := newTestService(t)
	created, _ := svc.Create(ctx, "acme", draft(core.KindInvoice))
	if _, err := svc.Transition(ctx, "acme", created.ID, core.StatusSent); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	edit := draft("")
	edit.Title = "June retainer"
	edit.Status = core.StatusPaid
	edit.Summary.AmountPaid = decimal.NewFromInt(999)
	got, err := svc.Update(ctx, "acme", created.ID, edit)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "June retainer" || got.Status != core.StatusSent || !got.Summary.AmountPaid.IsZero() {
		t.Errorf("lifecycle fields not preserved: status=%s paid=%s", got.Status, got.Summary.AmountPaid)
	}
	if got.Number != created.Number || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("identity not preserved: %+v", got)
	}

	edit.Kind = core.KindQuote
	if _, err := svc.Update(ctx, "acme", created.ID, edit); !errors.Is(err, core.ErrInvalidKind) {
		t.Errorf("kind change error = %v", err)
	}
	if _, err := svc.Update(ctx, "globex", created.ID, draft("")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign tenant update = %v, want ErrNotFound", err)
	}

	types := pub.types()
	if types[len(types)-1] != ports.EventDocumentUpdated {
		t.Errorf("last event = %s", types[len(types)-1])
	}
}

func TestDocumentService_Transition(t *testing.T) {
	ctx := context.Background()
	svc, store, pub, _ := newTestService(t)
	d, _ := svc.Create(ctx, "acme", draft(core.KindInvoice))

	if _, err := svc.Transition(ctx, "acme", d.ID, core.StatusAccepted); !errors.Is(err, core.ErrInvalidStatus) {
		t.Errorf("accepted on invoice = %v, want ErrInvalidStatus", err)
	}
	if _, err := svc.Transition(ctx, "acme", d.ID, core.StatusPaid); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("draft->paid = %v, want ErrInvalidTransition", err)
	}

	if _, err := svc.Transition(ctx, "acme", d.ID, core.StatusSent); err != nil {
		t.Fatalf("draft->sent: %v", err)
	}
	paid, err := svc.Transition(ctx, "acme", d.ID, core.StatusPaid)
	if err != nil {
		t.Fatalf("sent->paid: %v", err)
	}
	if !paid.Summary.AmountPaid.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("AmountPaid = %s, want 1500", paid.Summary.AmountPaid)
	}
	stored, _ := store.Get(ctx, "acme", d.ID)
	if stored.Status != core.StatusPaid || stored.PaidAt.IsZero() {
		t.Errorf("stored = %s paid_at=%v", stored.Status, stored.PaidAt)
	}
	if got := pub.types(); got[len(got)-1] != ports.EventDocumentStatusChanged {
		t.Errorf("last event = %v", got)
	}
}

func TestDocumentService_RecordPayment(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	d, _ := svc.Create(ctx, "acme", draft(core.KindInvoice))
	_, _ = svc.Transition(ctx, "acme", d.ID, core.StatusSent)

	got, err := svc.RecordPayment(ctx, "acme", d.ID, decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if got.Status != core.StatusPartiallyPaid || !got.Summary.AmountPaid.Equal(decimal.NewFromInt(500)) {
		t.Errorf("after partial: %s %s", got.Status, got.Summary.AmountPaid)
	}
	if got.BalanceDue().String() != "1000" {
		t.Errorf("BalanceDue = %s, want 1000", got.BalanceDue())
	}

	got, err = svc.RecordPayment(ctx, "acme", d.ID, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if got.Status != core.StatusPaid || !got.BalanceDue().IsZero() {
		t.Errorf("after final: %s balance %s", got.Status, got.BalanceDue())
	}

	if _, err := svc.RecordPayment(ctx, "acme", d.ID, decimal.NewFromInt(1)); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("payment on paid invoice = %v", err)
	}
	if _, err := svc.RecordPayment(ctx, "acme", d.ID, decimal.Zero); !errors.Is(err, core.ErrInvalidTransition) && !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero payment = %v", err)
	}
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _, pub, _ := newTestService(t)
	d, _ := svc.Create(ctx, "acme", draft(core.KindInvoice))

	if err := svc.Delete(ctx, "acme", d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "acme", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
	if err := svc.Delete(ctx, "acme", d.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
	if got := pub.types(); got[len(got)-1] != ports.EventDocumentDeleted {
		t.Errorf("last event = %v", got)
	}

	// deleted numbers are not reused
	next, _ := svc.Create(ctx, "acme", draft(core.KindInvoice))
	if next.Number != "INV-0002" {
		t.Errorf("Number after delete = %s, want INV-0002", next.Number)
	}
}

func TestDocumentService_Convert(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t)

	q := draft(core.KindEstimate)
	q.Category = core.CategoryLandscaping
	q.Details.Landscaping = &core.LandscapingDetails{PropertySize: "0.5 acre"}
	q.Summary.Discount = decimal.NewFromInt(100)
	est, _ := svc.Create(ctx, "acme", q)
	_, _ = svc.Transition(ctx, "acme", est.ID, core.StatusSent)

	inv, err := svc.Convert(ctx, "acme", est.ID)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if inv.Kind != core.KindInvoice || inv.Status != core.StatusDraft || inv.Number != "INV-0001" {
		t.Errorf("converted = %s %s %s", inv.Kind, inv.Status, inv.Number)
	}
	if inv.Details.Landscaping == nil || inv.GrandTotal().String() != "1400" {
		t.Errorf("content not carried over: total %s", inv.GrandTotal())
	}
	wantDue := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 29)
	if !inv.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, want %v", inv.DueDate, wantDue)
	}

	src, _ := store.Get(ctx, "acme", est.ID)
	if src.Status != core.StatusAccepted {
		t.Errorf("source status = %s, want accepted", src.Status)
	}

	invoice, _ := svc.Create(ctx, "acme", draft(core.KindInvoice))
	if _, err := svc.Convert(ctx, "acme", invoice.ID); !errors.Is(err, ErrNotConvertible) {
		t.Errorf("converting an invoice = %v", err)
	}
}

func TestDocumentService_Send(t *testing.T) {
	ctx := context.Background()
	svc, _, pub, _ := newTestService(t)
	d, _ := svc.Create(ctx, "acme", draft(core.KindInvoice))

	if _, err := svc.Send(ctx, "acme", d.ID, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	last := pub.events[len(pub.events)-1]
	if last.Type != ports.EventDocumentSend || last.Recipient != "ap@globex.test" {
		t.Errorf("send event = %+v", last)
	}

	if _, err := svc.Send(ctx, "acme", d.ID, "  cfo@globex.test "); err != nil {
		t.Fatalf("Send explicit: %v", err)
	}
	if got := pub.events[len(pub.events)-1].Recipient; got != "cfo@globex.test" {
		t.Errorf("recipient = %q", got)
	}

	noEmail := draft(core.KindInvoice)
	noEmail.Client.Email = ""
	ne, _ := svc.Create(ctx, "acme", noEmail)
	if _, err := svc.Send(ctx, "acme", ne.ID, ""); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("no recipient = %v", err)
	}

	ins := draft(core.KindInsurance)
	policy, _ := svc.Create(ctx, "acme", ins)
	if _, err := svc.Send(ctx, "acme", policy.ID, ""); !errors.Is(err, ErrNotSendable) {
		t.Errorf("insurance send = %v, want ErrNotSendable", err)
	}

	svc.publisher = nil
	if _, err := svc.Send(ctx, "acme", d.ID, ""); !errors.Is(err, ErrDeliveryUnavailable) {
		t.Errorf("without publisher = %v", err)
	}

	local := &localPublisher{}
	svc.publisher = local
	if _, err := svc.Send(ctx, "acme", d.ID, ""); !errors.Is(err, ErrDeliveryUnavailable) {
		t.Errorf("without delivery handler = %v", err)
	}
	if len(local.events) != 0 {
		t.Errorf("nothing should be queued, got %+v", local.events)
	}
	local.delivers = true
	if _, err := svc.Send(ctx, "acme", d.ID, ""); err != nil || len(local.events) != 1 {
		t.Errorf("with delivery handler = %v, queued %d", err, len(local.events))
	}
}

func TestDocumentService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	svc, store, pub, _ := newTestService(t)
	pub.err = errors.New("broker down")

	d, err := svc.Create(ctx, "acme", draft(core.KindInvoice))
	if err != nil {
		t.Fatalf("Create with failing publisher: %v", err)
	}
	if _, err := store.Get(ctx, "acme", d.ID); err != nil {
		t.Errorf("document not stored: %v", err)
	}
}
