package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"invoicer/internal/core"
	"invoicer/internal/metrics"
	"invoicer/internal/ports"
	"invoicer/internal/render"
	"invoicer/internal/services"
)

// DeliveryWorker emails documents queued by DocumentService.Send.
type DeliveryWorker struct {
	docs     *services.DocumentService
	renderer *render.Renderer
	pdf      ports.PDFRenderer
	mailer   ports.Mailer
}

// NewDeliveryWorker wires the worker. pdf may be nil, in which case mail
// goes out without the PDF attachment.
func NewDeliveryWorker(docs *services.DocumentService, renderer *render.Renderer, pdf ports.PDFRenderer, mailer ports.Mailer) *DeliveryWorker {
	return &DeliveryWorker{docs: docs, renderer: renderer, pdf: pdf, mailer: mailer}
}

// HandleEvent delivers document.send events and ignores the rest.
func (w *DeliveryWorker) HandleEvent(ctx context.Context, ev ports.Event) error {
	if ev.Type != ports.EventDocumentSend {
		return nil
	}
	if w.mailer == nil {
		return services.ErrDeliveryUnavailable
	}

	d, err := w.docs.Get(ctx, ev.TenantID, ev.DocumentID)
	if errors.Is(err, core.ErrNotFound) {
		// deleted after it was queued; nothing to deliver
		slog.WarnContext(ctx, "Dropping delivery of missing document",
			"tenant_id", ev.TenantID, "document_id", ev.DocumentID)
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	recipient := ev.Recipient
	if recipient == "" {
		recipient = d.Client.Email
	}
	if recipient == "" {
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		slog.WarnContext(ctx, "Dropping delivery without recipient", "document_id", d.ID)
		return nil
	}

	msg, err := w.compose(ctx, d, recipient)
	if err != nil {
		metrics.Deliveries.WithLabelValues("error").Inc()
		return err
	}
	if err := w.mailer.Send(ctx, msg); err != nil {
		metrics.Deliveries.WithLabelValues("error").Inc()
		return fmt.Errorf("send mail: %w", err)
	}
	metrics.Deliveries.WithLabelValues("sent").Inc()

	slog.InfoContext(ctx, "Document delivered",
		"tenant_id", d.TenantID,
		"document_id", d.ID,
		"document_number", d.Number,
		"attachments", len(msg.Attachments))

	if core.CanTransition(d.Kind, d.Status, core.StatusSent) {
		if _, err := w.docs.Transition(ctx, d.TenantID, d.ID, core.StatusSent); err != nil {
			// the mail is out; a redelivery would duplicate it
			slog.ErrorContext(ctx, "Failed to mark delivered document sent",
				"document_id", d.ID, "error", err)
		}
	}
	return nil
}

func (w *DeliveryWorker) compose(ctx context.Context, d core.Document, recipient string) (ports.Mail, error) {
	html, err := w.renderer.RenderBytes(d, render.Options{})
	if err != nil {
		return ports.Mail{}, fmt.Errorf("render document: %w", err)
	}

	msg := ports.Mail{
		To:      []string{recipient},
		Subject: Subject(d),
		HTML:    string(html),
	}
	if w.pdf == nil {
		return msg, nil
	}

	var buf bytes.Buffer
	if err := w.pdf.RenderPDF(ctx, html, &buf); err != nil {
		return ports.Mail{}, fmt.Errorf("render pdf: %w", err)
	}
	msg.Attachments = append(msg.Attachments, ports.Attachment{
		Filename:    render.Filename(d),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	})
	return msg, nil
}

// Subject reads like "Invoice INV-0001 from Acme Plumbing".
func Subject(d core.Document) string {
	s := d.Kind.Label()
	if d.Number != "" {
		s += " " + d.Number
	}
	if d.Business.Name != "" {
		s += " from " + d.Business.Name
	}
	return s
}
