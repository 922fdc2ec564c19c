package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindInvoice   Kind = "invoice"
	KindEstimate  Kind = "estimate"
	KindQuote     Kind = "quote"
	KindInsurance Kind = "insurance"
)

type (
	// Kind identifies the document family.
	Kind string

	Party struct {
		Name       string `json:"name"`
		Company    string `json:"company,omitempty"`
		Email      string `json:"email,omitempty"`
		Phone      string `json:"phone,omitempty"`
		Address    string `json:"address,omitempty"`
		Address2   string `json:"address2,omitempty"`
		City       string `json:"city,omitempty"`
		State      string `json:"state,omitempty"`
		PostalCode string `json:"postal_code,omitempty"`
		Country    string `json:"country,omitempty"`
		TaxID      string `json:"tax_id,omitempty"`
		Website    string `json:"website,omitempty"`
	}

	LineItem struct {
		Description string          `json:"description"`
		Quantity    decimal.Decimal `json:"quantity"`
		Unit        string          `json:"unit,omitempty"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		Amount      decimal.Decimal `json:"amount"` // stored amount, zero means qty * price
		TaxRate     decimal.Decimal `json:"tax_rate"`
	}

	Summary struct {
		Subtotal   decimal.Decimal `json:"subtotal"`
		Discount   decimal.Decimal `json:"discount"`
		Shipping   decimal.Decimal `json:"shipping"`
		Tax        decimal.Decimal `json:"tax"`
		TaxRate    decimal.Decimal `json:"tax_rate"` // percent
		GrandTotal decimal.Decimal `json:"grand_total"`
		AmountPaid decimal.Decimal `json:"amount_paid"`
	}

	// Document is a tenant-owned invoice, estimate, quote or insurance
	// document as stored in the document database.
	Document struct {
		ID        string          `json:"id"`
		TenantID  string          `json:"tenant_id"`
		Kind      Kind            `json:"kind"`
		Number    string          `json:"number"`
		Title     string          `json:"title,omitempty"`
		Category  string          `json:"category,omitempty"`
		Status    Status          `json:"status"`
		Currency  string          `json:"currency"`
		IssueDate time.Time       `json:"issue_date"`
		DueDate   time.Time       `json:"due_date,omitempty"`
		Business  Party           `json:"business"`
		Client    Party           `json:"client"`
		Items     []LineItem      `json:"items"`
		Summary   Summary         `json:"summary"`
		Notes     string          `json:"notes,omitempty"`
		Terms     string          `json:"terms,omitempty"`
		Template  string          `json:"template,omitempty"`
		Details   CategoryDetails `json:"details"`
		PaidAt    time.Time       `json:"paid_at,omitempty"`
		SentAt    time.Time       `json:"sent_at,omitempty"`
		CreatedAt time.Time       `json:"created_at"`
		UpdatedAt time.Time       `json:"updated_at"`
		Deleted   bool            `json:"deleted,omitempty"`
	}
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrInvalidKind       = errors.New("invalid document kind")
	ErrInvalidStatus     = errors.New("status not allowed for document kind")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyNumber       = errors.New("empty document number")
	ErrEmptyClient       = errors.New("empty client name")
	ErrNoItems           = errors.New("document has no line items")
	ErrNegativeAmount    = errors.New("negative amount")
	ErrDueBeforeIssue    = errors.New("due date before issue date")
	ErrMissingTenant     = errors.New("missing tenant")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrDuplicateNumber   = errors.New("document number already in use")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrDiscountTooLarge  = errors.New("discount exceeds subtotal")
)

// Kinds lists every supported document kind in display order.
func Kinds() []Kind {
	return []Kind{KindInvoice, KindEstimate, KindQuote, KindInsurance}
}

func (k Kind) IsValid() bool {
	switch k {
	case KindInvoice, KindEstimate, KindQuote, KindInsurance:
		return true
	}
	return false
}

// Label returns the human readable title used on printed documents.
func (k Kind) Label() string {
	switch k {
	case KindInvoice:
		return "Invoice"
	case KindEstimate:
		return "Estimate"
	case KindQuote:
		return "Quote"
	case KindInsurance:
		return "Insurance Document"
	}
	return "Document"
}

// NumberPrefix is the default prefix used when numbering new documents.
func (k Kind) NumberPrefix() string {
	switch k {
	case KindInvoice:
		return "INV-"
	case KindEstimate:
		return "EST-"
	case KindQuote:
		return "QUO-"
	case KindInsurance:
		return "INS-"
	}
	return "DOC-"
}

// Validate checks the document invariants that every backend relies on.
func (d Document) Validate() error {
	if strings.TrimSpace(d.TenantID) == "" {
		return ErrMissingTenant
	}
	if !d.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}
	if !d.Kind.Allows(d.Status) {
		return fmt.Errorf("%w: %s cannot be %q", ErrInvalidStatus, d.Kind, d.Status)
	}
	if strings.TrimSpace(d.Number) == "" {
		return ErrEmptyNumber
	}
	if len(d.Number) > 64 {
		return fmt.Errorf("%w: number too long (max 64 characters)", ErrInvalidDocument)
	}
	if strings.TrimSpace(d.Client.Name) == "" {
		return ErrEmptyClient
	}
	if len(d.Items) == 0 {
		return ErrNoItems
	}
	for i, it := range d.Items {
		if strings.TrimSpace(it.Description) == "" {
			return fmt.Errorf("%w: line item %d has an empty description", ErrInvalidDocument, i+1)
		}
		if it.Quantity.IsNegative() || it.UnitPrice.IsNegative() || it.Amount.IsNegative() || it.TaxRate.IsNegative() {
			return fmt.Errorf("line item %d: %w", i+1, ErrNegativeAmount)
		}
	}
	s := d.Summary
	for _, v := range []decimal.Decimal{s.Subtotal, s.Discount, s.Shipping, s.Tax, s.TaxRate, s.GrandTotal, s.AmountPaid} {
		if v.IsNegative() {
			return fmt.Errorf("summary: %w", ErrNegativeAmount)
		}
	}
	if t := ComputeTotals(d); t.Discount.GreaterThan(t.Subtotal) {
		return fmt.Errorf("%w: %s > %s", ErrDiscountTooLarge, t.Discount, t.Subtotal)
	}
	if !d.DueDate.IsZero() && !d.IssueDate.IsZero() && d.DueDate.Before(d.IssueDate) {
		return ErrDueBeforeIssue
	}
	if err := d.Details.Validate(d.Category); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// IsOpen reports whether the document still expects an action from the client.
func (d Document) IsOpen() bool {
	switch d.Status {
	case StatusPending, StatusSent, StatusPartiallyPaid, StatusOverdue:
		return true
	}
	return false
}

// ClientLabel is the name shown in tables: company first, person otherwise.
func (d Document) ClientLabel() string {
	if c := strings.TrimSpace(d.Client.Company); c != "" {
		return c
	}
	return d.Client.Name
}
