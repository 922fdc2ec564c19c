package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"invoicer/internal/core"

	_ "modernc.org/sqlite"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create implements ports.DocumentWriter
func (r *SQLiteRepository) Create(ctx context.Context, d core.Document) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	err = r.queries.InsertDocument(ctx, InsertDocumentParams{
		ID:         d.ID,
		TenantID:   d.TenantID,
		Kind:       string(d.Kind),
		Status:     string(d.Status),
		Number:     d.Number,
		Category:   d.Category,
		ClientName: d.ClientLabel(),
		IssueDate:  formatDate(d.IssueDate),
		DueDate:    formatDate(d.DueDate),
		GrandTotal: d.GrandTotal().StringFixed(2),
		Body:       string(body),
		CreatedAt:  d.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt:  d.UpdatedAt.UTC().Format(timestampLayout),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", core.ErrDuplicateNumber, d.Number)
		}
		return fmt.Errorf("insert document: %w", err)
	}

	slog.DebugContext(ctx, "Document saved to SQLite",
		"id", d.ID,
		"tenant_id", d.TenantID,
		"number", d.Number)
	return nil
}

// Update implements ports.DocumentWriter
func (r *SQLiteRepository) Update(ctx context.Context, d core.Document) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	n, err := r.queries.UpdateDocument(ctx, UpdateDocumentParams{
		Kind:       string(d.Kind),
		Status:     string(d.Status),
		Number:     d.Number,
		Category:   d.Category,
		ClientName: d.ClientLabel(),
		IssueDate:  formatDate(d.IssueDate),
		DueDate:    formatDate(d.DueDate),
		GrandTotal: d.GrandTotal().StringFixed(2),
		Body:       string(body),
		UpdatedAt:  d.UpdatedAt.UTC().Format(timestampLayout),
		TenantID:   d.TenantID,
		ID:         d.ID,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", core.ErrDuplicateNumber, d.Number)
		}
		return fmt.Errorf("update document: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Delete implements ports.DocumentWriter
func (r *SQLiteRepository) Delete(ctx context.Context, tenantID, id string) error {
	n, err := r.queries.SoftDeleteDocument(ctx, SoftDeleteDocumentParams{
		DeletedAt: r.now().UTC().Format(timestampLayout),
		TenantID:  tenantID,
		ID:        id,
	})
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	slog.InfoContext(ctx, "Document soft deleted", "id", id, "tenant_id", tenantID)
	return nil
}

// Get implements ports.DocumentReader
func (r *SQLiteRepository) Get(ctx context.Context, tenantID, id string) (core.Document, error) {
	row, err := r.queries.GetDocument(ctx, GetDocumentParams{TenantID: tenantID, ID: id})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, core.ErrNotFound
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("get document: %w", err)
	}
	return decodeRow(row)
}

// List implements ports.DocumentReader. Only the tenant and deleted flag are
// pushed down to SQL; the rest of the filter runs over decoded documents.
func (r *SQLiteRepository) List(ctx context.Context, f core.Filter) ([]core.Document, error) {
	if f.TenantID == "" {
		return nil, core.ErrMissingTenant
	}
	var includeDeleted int64
	if f.IncludeDeleted {
		includeDeleted = 1
	}
	rows, err := r.queries.ListDocuments(ctx, ListDocumentsParams{TenantID: f.TenantID, IncludeDeleted: includeDeleted})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	docs := make([]core.Document, 0, len(rows))
	for _, row := range rows {
		d, err := decodeRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable document", "id", row.ID, "error", err)
			continue
		}
		if f.Match(d) {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// PendingLedgerSync is a document whose latest version has not reached the
// ledger yet.
type PendingLedgerSync struct {
	ID       string
	TenantID string
	Version  int64
	Deleted  bool
}

// Tenants implements ports.TenantLister.
func (r *SQLiteRepository) Tenants(ctx context.Context) ([]string, error) {
	tenants, err := r.queries.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// ListPendingLedgerSync returns up to limit documents awaiting ledger sync.
func (r *SQLiteRepository) ListPendingLedgerSync(ctx context.Context, limit int) ([]PendingLedgerSync, error) {
	rows, err := r.queries.ListPendingLedgerSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending ledger sync: %w", err)
	}
	out := make([]PendingLedgerSync, len(rows))
	for i, row := range rows {
		out[i] = PendingLedgerSync(row)
	}
	return out, nil
}

// MarkLedgerSynced records that version of the document reached the ledger.
func (r *SQLiteRepository) MarkLedgerSynced(ctx context.Context, id string, version int64) error {
	err := r.queries.MarkLedgerSynced(ctx, MarkLedgerSyncedParams{
		Version:  version,
		SyncedAt: r.now().UTC().Format(timestampLayout),
		ID:       id,
	})
	if err != nil {
		return fmt.Errorf("mark ledger synced: %w", err)
	}
	slog.DebugContext(ctx, "Document marked as synced", "id", id, "version", version)
	return nil
}

// MarkLedgerSyncError keeps the last sync failure for inspection. The
// document stays pending.
func (r *SQLiteRepository) MarkLedgerSyncError(ctx context.Context, id string, syncErr error) error {
	if err := r.queries.MarkLedgerSyncError(ctx, MarkLedgerSyncErrorParams{Error: syncErr.Error(), ID: id}); err != nil {
		return fmt.Errorf("mark ledger sync error: %w", err)
	}
	slog.WarnContext(ctx, "Document marked with sync error", "id", id, "error", syncErr)
	return nil
}

func decodeRow(row Document) (core.Document, error) {
	var d core.Document
	if err := json.Unmarshal([]byte(row.Body), &d); err != nil {
		return core.Document{}, fmt.Errorf("decode document %s: %w", row.ID, err)
	}
	// indexed columns are authoritative
	d.ID = row.ID
	d.TenantID = row.TenantID
	d.Deleted = row.DeletedAt.Valid
	return d, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
