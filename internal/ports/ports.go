package ports

import (
	"context"
	"io"
	"time"

	"invoicer/internal/core"
)

// Ports for outbound adapters.
type (
	DocumentReader interface {
		// Get returns the document with the given id owned by tenantID, or
		// core.ErrNotFound. Soft deleted documents are not found.
		Get(ctx context.Context, tenantID, id string) (core.Document, error)
		// List returns the documents matching the filter, newest issue first.
		List(ctx context.Context, f core.Filter) ([]core.Document, error)
	}

	DocumentWriter interface {
		Create(ctx context.Context, d core.Document) error
		Update(ctx context.Context, d core.Document) error
		// Delete soft deletes the document.
		Delete(ctx context.Context, tenantID, id string) error
	}

	// DocumentStore is the document database behind the dashboard.
	DocumentStore interface {
		DocumentReader
		DocumentWriter
		Ping(ctx context.Context) error
		Close() error
	}

	// TenantLister enumerates tenants that own at least one live document.
	TenantLister interface {
		Tenants(ctx context.Context) ([]string, error)
	}

	// EventPublisher announces document changes to background workers.
	EventPublisher interface {
		PublishDocumentEvent(ctx context.Context, ev Event) error
	}

	// LedgerWriter mirrors documents into an external ledger spreadsheet.
	LedgerWriter interface {
		UpsertDocument(ctx context.Context, d core.Document) error
		RemoveDocument(ctx context.Context, tenantID, id string) error
	}

	// PDFRenderer prints a rendered HTML page to PDF.
	PDFRenderer interface {
		RenderPDF(ctx context.Context, html []byte, w io.Writer) error
	}

	// Mailer sends a message with optional attachments.
	Mailer interface {
		Send(ctx context.Context, m Mail) error
	}
)

// Event types published on document changes.
const (
	EventDocumentCreated       = "document.created"
	EventDocumentUpdated       = "document.updated"
	EventDocumentStatusChanged = "document.status_changed"
	EventDocumentDeleted       = "document.deleted"
	EventDocumentSend          = "document.send"
)

// Event is a lightweight notification; consumers load the document itself.
type Event struct {
	Type       string    `json:"type"`
	TenantID   string    `json:"tenant_id"`
	DocumentID string    `json:"document_id"`
	Recipient  string    `json:"recipient,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type (
	Attachment struct {
		Filename    string
		ContentType string
		Data        []byte
	}

	Mail struct {
		To          []string
		Subject     string
		HTML        string
		Attachments []Attachment
	}
)
