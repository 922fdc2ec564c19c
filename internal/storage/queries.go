package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Document is a row of the documents table.
type Document struct {
	ID              string
	TenantID        string
	Kind            string
	Status          string
	Number          string
	Category        string
	ClientName      string
	IssueDate       string
	DueDate         string
	GrandTotal      string
	Body            string
	Version         int64
	CreatedAt       string
	UpdatedAt       string
	DeletedAt       sql.NullString
	LedgerVersion   int64
	LedgerSyncedAt  sql.NullString
	LedgerSyncError sql.NullString
}

const documentColumns = `id, tenant_id, kind, status, number, category, client_name, issue_date, due_date,
grand_total, body, version, created_at, updated_at, deleted_at, ledger_version, ledger_synced_at, ledger_sync_error`

func scanDocument(row interface{ Scan(...interface{}) error }) (Document, error) {
	var i Document
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Kind,
		&i.Status,
		&i.Number,
		&i.Category,
		&i.ClientName,
		&i.IssueDate,
		&i.DueDate,
		&i.GrandTotal,
		&i.Body,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DeletedAt,
		&i.LedgerVersion,
		&i.LedgerSyncedAt,
		&i.LedgerSyncError,
	)
	return i, err
}

const insertDocument = `-- name: InsertDocument :exec
INSERT INTO documents (
    id, tenant_id, kind, status, number, category, client_name,
    issue_date, due_date, grand_total, body, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertDocumentParams struct {
	ID         string
	TenantID   string
	Kind       string
	Status     string
	Number     string
	Category   string
	ClientName string
	IssueDate  string
	DueDate    string
	GrandTotal string
	Body       string
	CreatedAt  string
	UpdatedAt  string
}

func (q *Queries) InsertDocument(ctx context.Context, arg InsertDocumentParams) error {
	_, err := q.db.ExecContext(ctx, insertDocument,
		arg.ID,
		arg.TenantID,
		arg.Kind,
		arg.Status,
		arg.Number,
		arg.Category,
		arg.ClientName,
		arg.IssueDate,
		arg.DueDate,
		arg.GrandTotal,
		arg.Body,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateDocument = `-- name: UpdateDocument :execrows
UPDATE documents
SET kind = ?, status = ?, number = ?, category = ?, client_name = ?,
    issue_date = ?, due_date = ?, grand_total = ?, body = ?, updated_at = ?,
    version = version + 1
WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL
`

type UpdateDocumentParams struct {
	Kind       string
	Status     string
	Number     string
	Category   string
	ClientName string
	IssueDate  string
	DueDate    string
	GrandTotal string
	Body       string
	UpdatedAt  string
	TenantID   string
	ID         string
}

func (q *Queries) UpdateDocument(ctx context.Context, arg UpdateDocumentParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateDocument,
		arg.Kind,
		arg.Status,
		arg.Number,
		arg.Category,
		arg.ClientName,
		arg.IssueDate,
		arg.DueDate,
		arg.GrandTotal,
		arg.Body,
		arg.UpdatedAt,
		arg.TenantID,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getDocument = `-- name: GetDocument :one
SELECT ` + documentColumns + `
FROM documents
WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL
`

type GetDocumentParams struct {
	TenantID string
	ID       string
}

func (q *Queries) GetDocument(ctx context.Context, arg GetDocumentParams) (Document, error) {
	row := q.db.QueryRowContext(ctx, getDocument, arg.TenantID, arg.ID)
	return scanDocument(row)
}

const listDocuments = `-- name: ListDocuments :many
SELECT ` + documentColumns + `
FROM documents
WHERE tenant_id = ? AND (? = 1 OR deleted_at IS NULL)
ORDER BY issue_date DESC, number DESC
`

type ListDocumentsParams struct {
	TenantID       string
	IncludeDeleted int64
}

func (q *Queries) ListDocuments(ctx context.Context, arg ListDocumentsParams) ([]Document, error) {
	rows, err := q.db.QueryContext(ctx, listDocuments, arg.TenantID, arg.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Document
	for rows.Next() {
		i, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const softDeleteDocument = `-- name: SoftDeleteDocument :execrows
UPDATE documents
SET deleted_at = ?, updated_at = ?, version = version + 1
WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL
`

type SoftDeleteDocumentParams struct {
	DeletedAt string
	TenantID  string
	ID        string
}

func (q *Queries) SoftDeleteDocument(ctx context.Context, arg SoftDeleteDocumentParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, softDeleteDocument, arg.DeletedAt, arg.DeletedAt, arg.TenantID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listPendingLedgerSync = `-- name: ListPendingLedgerSync :many
SELECT id, tenant_id, version, deleted_at IS NOT NULL AS deleted
FROM documents
WHERE ledger_version < version
ORDER BY updated_at
LIMIT ?
`

type ListPendingLedgerSyncRow struct {
	ID       string
	TenantID string
	Version  int64
	Deleted  bool
}

func (q *Queries) ListPendingLedgerSync(ctx context.Context, limit int64) ([]ListPendingLedgerSyncRow, error) {
	rows, err := q.db.QueryContext(ctx, listPendingLedgerSync, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPendingLedgerSyncRow
	for rows.Next() {
		var i ListPendingLedgerSyncRow
		if err := rows.Scan(&i.ID, &i.TenantID, &i.Version, &i.Deleted); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markLedgerSynced = `-- name: MarkLedgerSynced :exec
UPDATE documents
SET ledger_version = ?, ledger_synced_at = ?, ledger_sync_error = NULL
WHERE id = ? AND ledger_version < ?
`

type MarkLedgerSyncedParams struct {
	Version  int64
	SyncedAt string
	ID       string
}

func (q *Queries) MarkLedgerSynced(ctx context.Context, arg MarkLedgerSyncedParams) error {
	_, err := q.db.ExecContext(ctx, markLedgerSynced, arg.Version, arg.SyncedAt, arg.ID, arg.Version)
	return err
}

const markLedgerSyncError = `-- name: MarkLedgerSyncError :exec
UPDATE documents
SET ledger_sync_error = ?
WHERE id = ?
`

type MarkLedgerSyncErrorParams struct {
	Error string
	ID    string
}

func (q *Queries) MarkLedgerSyncError(ctx context.Context, arg MarkLedgerSyncErrorParams) error {
	_, err := q.db.ExecContext(ctx, markLedgerSyncError, arg.Error, arg.ID)
	return err
}

const listTenants = `-- name: ListTenants :many
SELECT DISTINCT tenant_id FROM documents
WHERE deleted_at IS NULL
ORDER BY tenant_id
`

func (q *Queries) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listTenants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, err
		}
		items = append(items, tenantID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
