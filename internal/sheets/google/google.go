// Package google mirrors documents into a Google Sheets ledger, one row per
// document keyed by the document id in column A.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"invoicer/internal/core"
	"invoicer/internal/ports"
)

var _ ports.LedgerWriter = (*Client)(nil)

// Header is written to row 1 of an empty ledger sheet.
var Header = []any{
	"Document ID", "Tenant", "Number", "Kind", "Status", "Client",
	"Issue date", "Due date", "Currency", "Grand total", "Balance due", "Updated",
}

const lastCol = "L"

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// New creates a ledger client authenticated with service account
// credentials, inline JSON first, then the file.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test
// endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	if sheet == "" {
		sheet = "Ledger"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case cfg.CredentialsFile != "":
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = raw
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// UpsertDocument rewrites the document row, appending one when the id is
// not in the sheet yet.
func (c *Client) UpsertDocument(ctx context.Context, d core.Document) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}

	row := findRow(ids, d.ID)
	if row == 0 {
		if len(ids) == 0 {
			if err := c.update(ctx, fmt.Sprintf("%s!A1:%s1", c.sheet, lastCol), Header); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			ids = []string{"Document ID"}
		}
		row = len(ids) + 1
	}

	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastCol, row)
	if err := c.update(ctx, rng, ledgerRow(d)); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// RemoveDocument marks the row deleted. Rows are never removed so the
// sheet keeps an audit trail.
func (c *Client) RemoveDocument(ctx context.Context, _ string, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!E%d", c.sheet, row)
	if err := c.update(ctx, rng, []any{"deleted"}); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return ids, nil
}

func (c *Client) update(ctx context.Context, rng string, values []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

// findRow returns the 1-based sheet row holding id, 0 when absent. Row 1
// is the header.
func findRow(ids []string, id string) int {
	for i := 1; i < len(ids); i++ {
		if ids[i] == id {
			return i + 1
		}
	}
	return 0
}

func ledgerRow(d core.Document) []any {
	t := core.ComputeTotals(d)
	return []any{
		d.ID,
		d.TenantID,
		d.Number,
		string(d.Kind),
		string(d.Status),
		d.ClientLabel(),
		dateCell(d.IssueDate),
		dateCell(d.DueDate),
		d.Currency,
		t.GrandTotal.StringFixed(2),
		t.BalanceDue.StringFixed(2),
		d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func dateCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
