package worker

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoicer/internal/core"
	"invoicer/internal/ports"
	"invoicer/internal/render"
	"invoicer/internal/services"
	ledgermem "invoicer/internal/sheets/memory"
	"invoicer/internal/storage"
	"invoicer/internal/storage/memory"
)

func invoice(id, number string) core.Document {
	return core.Document{
		ID:        id,
		TenantID:  "acme",
		Kind:      core.KindInvoice,
		Number:    number,
		Status:    core.StatusDraft,
		Currency:  "USD",
		IssueDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Business:  core.Party{Name: "Acme Works"},
		Client:    core.Party{Name: "Globex", Email: "ap@globex.test"},
		Items:     []core.LineItem{{Description: "Repair", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(60)}},
	}
}

type failingLedger struct{ err error }

func (f failingLedger) UpsertDocument(context.Context, core.Document) error   { return f.err }
func (f failingLedger) RemoveDocument(context.Context, string, string) error { return f.err }

func TestLedgerWorker_HandleEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(invoice("d1", "INV-0001"))
	ledger := ledgermem.New()
	w := NewLedgerWorker(store, ledger, nil, LedgerConfig{})

	if err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentCreated, TenantID: "acme", DocumentID: "d1"}); err != nil {
		t.Fatalf("created: %v", err)
	}
	if d, ok, removed := ledger.Row("d1"); !ok || removed || d.Number != "INV-0001" {
		t.Fatalf("row after create = %+v ok=%v removed=%v", d, ok, removed)
	}

	// a document deleted before the update event is handled is removed
	if err := store.Delete(ctx, "acme", "d1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentUpdated, TenantID: "acme", DocumentID: "d1"}); err != nil {
		t.Fatalf("updated: %v", err)
	}
	if _, _, removed := ledger.Row("d1"); !removed {
		t.Error("expected row marked removed")
	}

	if err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentSend, TenantID: "acme", DocumentID: "d1"}); err != nil {
		t.Errorf("send events are not the ledger's concern: %v", err)
	}

	broken := NewLedgerWorker(store, failingLedger{err: errors.New("quota")}, nil, LedgerConfig{})
	if err := broken.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentDeleted, TenantID: "acme", DocumentID: "d1"}); err == nil {
		t.Error("expected ledger error to surface")
	}
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestLedgerWorker_ProcessPending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	for _, d := range []core.Document{invoice("a1", "INV-0001"), invoice("a2", "INV-0002"), invoice("a3", "INV-0003")} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create %s: %v", d.ID, err)
		}
	}
	if err := repo.Delete(ctx, "acme", "a3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ledger := ledgermem.New()
	w := NewLedgerWorker(repo, ledger, repo, LedgerConfig{BatchSize: 2})
	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}

	for _, id := range []string{"a1", "a2"} {
		if _, ok, removed := ledger.Row(id); !ok || removed {
			t.Errorf("%s not mirrored: ok=%v removed=%v", id, ok, removed)
		}
	}
	if pending, _ := repo.ListPendingLedgerSync(ctx, 10); len(pending) != 0 {
		t.Errorf("expected nothing pending, got %+v", pending)
	}

	if n, err := w.ProcessPending(ctx); err != nil || n != 0 {
		t.Errorf("second pass = %d, %v; want 0, nil", n, err)
	}
}

func TestLedgerWorker_ProcessPendingFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	if err := repo.Create(ctx, invoice("a1", "INV-0001")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := NewLedgerWorker(repo, failingLedger{err: errors.New("quota exceeded")}, repo, LedgerConfig{})
	n, err := w.ProcessPending(ctx)
	if err != nil || n != 0 {
		t.Fatalf("ProcessPending = %d, %v; want 0, nil", n, err)
	}
	if pending, _ := repo.ListPendingLedgerSync(ctx, 10); len(pending) != 1 {
		t.Fatalf("failed document should stay pending, got %d", len(pending))
	}
}

func TestLedgerWorker_Lifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := newRepo(t)
	if err := repo.Create(ctx, invoice("a1", "INV-0001")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ledger := ledgermem.New()
	w := NewLedgerWorker(repo, ledger, repo, LedgerConfig{PollInterval: 10 * time.Millisecond})

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("expected error starting twice")
	}
	if !w.IsRunning() {
		t.Error("expected running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := ledger.Row("a1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("document never reached the ledger")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if w.IsRunning() {
		t.Error("expected stopped")
	}
	if err := w.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestLedgerWorker_Restart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo := newRepo(t)
	w := NewLedgerWorker(repo, ledgermem.New(), repo, LedgerConfig{PollInterval: time.Millisecond})

	for i := 0; i < 50; i++ {
		if err := w.Start(ctx); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		stopCtx, stop := context.WithTimeout(ctx, time.Second)
		err := w.Stop(stopCtx)
		stop()
		if err != nil {
			t.Fatalf("Stop #%d: %v", i, err)
		}
	}
	if w.IsRunning() {
		t.Error("expected stopped after last cycle")
	}
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []ports.Mail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m ports.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakePDF struct{ calls int }

func (f *fakePDF) RenderPDF(_ context.Context, html []byte, w io.Writer) error {
	f.calls++
	_, err := io.WriteString(w, "%PDF-1.4 fake")
	return err
}

func newDelivery(t *testing.T, store *memory.Store, mailer ports.Mailer, pdf ports.PDFRenderer) (*DeliveryWorker, *services.DocumentService) {
	t.Helper()
	r, err := render.New(nil)
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	docs := services.NewDocumentService(store, nil, nil)
	return NewDeliveryWorker(docs, r, pdf, mailer), docs
}

func TestDeliveryWorker_Delivers(t *testing.T) {
	ctx := context.Background()
	store := memory.New(invoice("d1", "INV-0007"))
	mailer := &fakeMailer{}
	pdf := &fakePDF{}
	w, docs := newDelivery(t, store, mailer, pdf)

	err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentSend, TenantID: "acme", DocumentID: "d1", Recipient: "boss@globex.test"})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}
	m := mailer.sent[0]
	if m.To[0] != "boss@globex.test" {
		t.Errorf("To = %v", m.To)
	}
	if m.Subject != "Invoice INV-0007 from Acme Works" {
		t.Errorf("Subject = %q", m.Subject)
	}
	if !strings.Contains(m.HTML, "INV-0007") {
		t.Error("body does not contain the rendered document")
	}
	if len(m.Attachments) != 1 || m.Attachments[0].Filename != "invoice-INV-0007.pdf" || pdf.calls != 1 {
		t.Errorf("attachments = %+v, pdf calls = %d", m.Attachments, pdf.calls)
	}

	d, err := docs.Get(ctx, "acme", "d1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Status != core.StatusSent {
		t.Errorf("status = %s, want sent", d.Status)
	}
}

func TestDeliveryWorker_Edges(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to client email without pdf", func(t *testing.T) {
		mailer := &fakeMailer{}
		w, _ := newDelivery(t, memory.New(invoice("d1", "INV-0001")), mailer, nil)
		if err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentSend, TenantID: "acme", DocumentID: "d1"}); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
		if len(mailer.sent) != 1 || mailer.sent[0].To[0] != "ap@globex.test" || len(mailer.sent[0].Attachments) != 0 {
			t.Errorf("unexpected mail: %+v", mailer.sent)
		}
	})

	t.Run("missing document is dropped", func(t *testing.T) {
		mailer := &fakeMailer{}
		w, _ := newDelivery(t, memory.New(), mailer, nil)
		if err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentSend, TenantID: "acme", DocumentID: "nope"}); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
		if len(mailer.sent) != 0 {
			t.Error("nothing should be sent")
		}
	})

	t.Run("mail failure is retried and leaves status alone", func(t *testing.T) {
		store := memory.New(invoice("d1", "INV-0001"))
		w, _ := newDelivery(t, store, &fakeMailer{err: errors.New("smtp down")}, nil)
		if err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentSend, TenantID: "acme", DocumentID: "d1"}); err == nil {
			t.Fatal("expected error")
		}
		d, _ := store.Get(ctx, "acme", "d1")
		if d.Status != core.StatusDraft {
			t.Errorf("status = %s, want draft", d.Status)
		}
	})

	t.Run("other events ignored", func(t *testing.T) {
		mailer := &fakeMailer{}
		w, _ := newDelivery(t, memory.New(invoice("d1", "INV-0001")), mailer, nil)
		if err := w.HandleEvent(ctx, ports.Event{Type: ports.EventDocumentCreated, TenantID: "acme", DocumentID: "d1"}); err != nil || len(mailer.sent) != 0 {
			t.Errorf("err = %v, sent = %d", err, len(mailer.sent))
		}
	})
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	var seen []string
	ok := HandlerFunc(func(_ context.Context, ev ports.Event) error {
		seen = append(seen, "ok:"+ev.Type)
		return nil
	})
	bad := HandlerFunc(func(_ context.Context, ev ports.Event) error {
		seen = append(seen, "bad:"+ev.Type)
		return errors.New("boom")
	})

	var nilLedger *LedgerWorker
	d := NewDispatcher(ok, nil, nilLedger, bad)
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}

	err := d.Handle(ctx, ports.Event{Type: ports.EventDocumentUpdated})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Handle error = %v", err)
	}
	if strings.Join(seen, ",") != "ok:document.updated,bad:document.updated" {
		t.Errorf("handlers ran as %v", seen)
	}
}
