package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"invoicer/internal/core"
	"invoicer/internal/metrics"
	"invoicer/internal/ports"
)

var (
	ErrNotConvertible      = errors.New("only estimates and quotes can be converted to invoices")
	ErrNoRecipient         = errors.New("no recipient email for document")
	ErrDeliveryUnavailable = errors.New("document delivery is not configured")
	ErrNotSendable         = errors.New("document cannot be sent in its current status")
)

// DeliveryChecker is implemented by publishers that know whether anything
// will act on document.send events.
type DeliveryChecker interface {
	CanDeliver() bool
}

// Invalidator drops cached aggregates for a tenant after a write.
type Invalidator interface {
	Invalidate(tenantID string)
}

// DocumentService orchestrates document writes across the store and the
// event publisher.
type DocumentService struct {
	store       ports.DocumentStore
	publisher   ports.EventPublisher
	invalidator Invalidator
	now         func() time.Time
	newID       func() string
}

// NewDocumentService wires the service. publisher and invalidator may be nil.
func NewDocumentService(store ports.DocumentStore, publisher ports.EventPublisher, invalidator Invalidator) *DocumentService {
	return &DocumentService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Get returns a live document owned by tenantID.
func (s *DocumentService) Get(ctx context.Context, tenantID, id string) (core.Document, error) {
	if tenantID == "" {
		return core.Document{}, core.ErrMissingTenant
	}
	return s.store.Get(ctx, tenantID, id)
}

// Create assigns identity, number and timestamps, validates and stores d.
func (s *DocumentService) Create(ctx context.Context, tenantID string, d core.Document) (core.Document, error) {
	if tenantID == "" {
		return core.Document{}, core.ErrMissingTenant
	}
	if !d.Kind.IsValid() {
		return core.Document{}, fmt.Errorf("%w: %q", core.ErrInvalidKind, d.Kind)
	}

	now := s.now().UTC()
	d.ID = s.newID()
	d.TenantID = tenantID
	d.Deleted = false
	d.CreatedAt, d.UpdatedAt = now, now
	d.PaidAt, d.SentAt = time.Time{}, time.Time{}
	if d.Status == "" {
		d.Status = core.StatusDraft
	}
	if d.Currency == "" {
		d.Currency = "USD"
	}
	if d.IssueDate.IsZero() {
		d.IssueDate = dateOnly(now)
	}
	d.Number = strings.TrimSpace(d.Number)
	if d.Number == "" {
		num, err := s.nextNumber(ctx, tenantID, d.Kind)
		if err != nil {
			return core.Document{}, err
		}
		d.Number = num
	}

	if err := d.Validate(); err != nil {
		return core.Document{}, err
	}
	if err := s.store.Create(ctx, d); err != nil {
		return core.Document{}, fmt.Errorf("create document: %w", err)
	}

	s.afterWrite(ctx, ports.EventDocumentCreated, d, "")
	return d, nil
}

// Update replaces the editable content of a document. Identity, status,
// payment and creation fields are kept from the stored version.
func (s *DocumentService) Update(ctx context.Context, tenantID, id string, d core.Document) (core.Document, error) {
	cur, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return core.Document{}, err
	}
	if d.Kind != "" && d.Kind != cur.Kind {
		return core.Document{}, fmt.Errorf("%w: kind cannot change from %s to %s", core.ErrInvalidKind, cur.Kind, d.Kind)
	}

	d.ID, d.TenantID, d.Kind = cur.ID, cur.TenantID, cur.Kind
	d.Status, d.PaidAt, d.SentAt = cur.Status, cur.PaidAt, cur.SentAt
	d.CreatedAt, d.Deleted = cur.CreatedAt, false
	d.Summary.AmountPaid = cur.Summary.AmountPaid
	if strings.TrimSpace(d.Number) == "" {
		d.Number = cur.Number
	}
	if d.Currency == "" {
		d.Currency = cur.Currency
	}
	if d.IssueDate.IsZero() {
		d.IssueDate = cur.IssueDate
	}
	d.UpdatedAt = s.now().UTC()

	if err := d.Validate(); err != nil {
		return core.Document{}, err
	}
	if err := s.store.Update(ctx, d); err != nil {
		return core.Document{}, fmt.Errorf("update document: %w", err)
	}

	s.afterWrite(ctx, ports.EventDocumentUpdated, d, "")
	return d, nil
}

// Transition moves a document to a new status.
func (s *DocumentService) Transition(ctx context.Context, tenantID, id string, to core.Status) (core.Document, error) {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return core.Document{}, err
	}
	if err := d.Transition(to, s.now().UTC()); err != nil {
		return core.Document{}, err
	}
	if err := s.store.Update(ctx, d); err != nil {
		return core.Document{}, fmt.Errorf("update status: %w", err)
	}

	s.afterWrite(ctx, ports.EventDocumentStatusChanged, d, "")
	return d, nil
}

// RecordPayment adds amount to the amount paid and moves an invoice to
// paid or partially_paid accordingly.
func (s *DocumentService) RecordPayment(ctx context.Context, tenantID, id string, amount decimal.Decimal) (core.Document, error) {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return core.Document{}, err
	}
	if d.Kind != core.KindInvoice {
		return core.Document{}, fmt.Errorf("%w: payments apply to invoices only", core.ErrInvalidKind)
	}
	if d.Status == core.StatusPaid {
		return core.Document{}, fmt.Errorf("%w: invoice is already paid", core.ErrInvalidTransition)
	}
	if !amount.IsPositive() {
		return core.Document{}, fmt.Errorf("%w: payment must be positive", core.ErrInvalidAmount)
	}

	grand := d.GrandTotal()
	paid := d.Summary.AmountPaid.Add(amount).Round(2)
	to := core.StatusPartiallyPaid
	if paid.GreaterThanOrEqual(grand) {
		to = core.StatusPaid
	}
	now := s.now().UTC()
	if d.Status != to {
		if err := d.Transition(to, now); err != nil {
			return core.Document{}, err
		}
	}
	if to == core.StatusPartiallyPaid {
		d.Summary.AmountPaid = paid
	}
	d.UpdatedAt = now

	if err := s.store.Update(ctx, d); err != nil {
		return core.Document{}, fmt.Errorf("record payment: %w", err)
	}
	s.afterWrite(ctx, ports.EventDocumentStatusChanged, d, "")
	return d, nil
}

// Delete soft deletes a document.
func (s *DocumentService) Delete(ctx context.Context, tenantID, id string) error {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	d.Deleted = true
	s.afterWrite(ctx, ports.EventDocumentDeleted, d, "")
	return nil
}

// Convert creates a draft invoice from an estimate or quote. A sent source
// is marked accepted.
func (s *DocumentService) Convert(ctx context.Context, tenantID, id string) (core.Document, error) {
	src, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return core.Document{}, err
	}
	if src.Kind != core.KindEstimate && src.Kind != core.KindQuote {
		return core.Document{}, ErrNotConvertible
	}
	if src.Status == core.StatusCancelled || src.Status == core.StatusDeclined {
		return core.Document{}, fmt.Errorf("%w: source is %s", ErrNotConvertible, src.Status)
	}

	today := dateOnly(s.now().UTC())
	inv := core.Document{
		Kind:      core.KindInvoice,
		Title:     src.Title,
		Category:  src.Category,
		Currency:  src.Currency,
		IssueDate: today,
		Business:  src.Business,
		Client:    src.Client,
		Items:     append([]core.LineItem(nil), src.Items...),
		Summary: core.Summary{
			Discount: src.Summary.Discount,
			Shipping: src.Summary.Shipping,
			Tax:      src.Summary.Tax,
			TaxRate:  src.Summary.TaxRate,
		},
		Notes:    src.Notes,
		Terms:    src.Terms,
		Template: src.Template,
		Details:  src.Details,
	}
	if !src.DueDate.IsZero() && src.DueDate.After(src.IssueDate) {
		inv.DueDate = today.Add(src.DueDate.Sub(src.IssueDate))
	} else {
		inv.DueDate = today.AddDate(0, 0, 30)
	}

	created, err := s.Create(ctx, tenantID, inv)
	if err != nil {
		return core.Document{}, err
	}

	if src.Status == core.StatusSent {
		if _, err := s.Transition(ctx, tenantID, src.ID, core.StatusAccepted); err != nil {
			slog.WarnContext(ctx, "Failed to accept converted document",
				"tenant_id", tenantID, "document_id", src.ID, "error", err)
		}
	}
	return created, nil
}

// Send queues delivery of the document to recipient, or to the client email
// when recipient is empty. The delivery worker marks it sent.
func (s *DocumentService) Send(ctx context.Context, tenantID, id, recipient string) (core.Document, error) {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return core.Document{}, err
	}
	if !Sendable(d) {
		return core.Document{}, fmt.Errorf("%w: %s %s", ErrNotSendable, d.Kind, d.Status)
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		recipient = d.Client.Email
	}
	if recipient == "" {
		return core.Document{}, ErrNoRecipient
	}
	if s.publisher == nil {
		return core.Document{}, ErrDeliveryUnavailable
	}
	if c, ok := s.publisher.(DeliveryChecker); ok && !c.CanDeliver() {
		return core.Document{}, ErrDeliveryUnavailable
	}

	ev := ports.Event{
		Type:       ports.EventDocumentSend,
		TenantID:   tenantID,
		DocumentID: id,
		Recipient:  recipient,
		Timestamp:  s.now().UTC(),
	}
	if err := s.publisher.PublishDocumentEvent(ctx, ev); err != nil {
		return core.Document{}, fmt.Errorf("queue delivery: %w", err)
	}
	return d, nil
}

// Sendable reports whether a document may be emailed: kinds with a sent
// status, in a status that can move to sent or already is.
func Sendable(d core.Document) bool {
	if !d.Kind.Allows(core.StatusSent) {
		return false
	}
	return d.Status == core.StatusSent || d.Status == core.StatusOverdue ||
		d.Status == core.StatusPartiallyPaid || core.CanTransition(d.Kind, d.Status, core.StatusSent)
}

func (s *DocumentService) nextNumber(ctx context.Context, tenantID string, kind core.Kind) (string, error) {
	docs, err := s.store.List(ctx, core.Filter{TenantID: tenantID, Kinds: []core.Kind{kind}, IncludeDeleted: true})
	if err != nil {
		return "", fmt.Errorf("list numbers: %w", err)
	}
	existing := make([]string, 0, len(docs))
	for _, d := range docs {
		existing = append(existing, d.Number)
	}
	return core.NextNumber(kind.NumberPrefix(), existing), nil
}

// afterWrite invalidates cached aggregates and publishes the change. A
// failed publish is logged; the write itself has succeeded.
func (s *DocumentService) afterWrite(ctx context.Context, typ string, d core.Document, recipient string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(d.TenantID)
	}
	metrics.DocumentWrites.WithLabelValues(typ).Inc()

	slog.InfoContext(ctx, "Document written",
		"event_type", typ,
		"tenant_id", d.TenantID,
		"document_id", d.ID,
		"document_number", d.Number,
		"status", d.Status)

	if s.publisher == nil {
		return
	}
	ev := ports.Event{
		Type:       typ,
		TenantID:   d.TenantID,
		DocumentID: d.ID,
		Recipient:  recipient,
		Timestamp:  s.now().UTC(),
	}
	if err := s.publisher.PublishDocumentEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish document event",
			"event_type", typ, "document_id", d.ID, "error", err)
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
