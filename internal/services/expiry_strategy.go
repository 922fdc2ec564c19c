// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for the periodic sweep. Each
// document kind has its own checker that decides whether a document has
// lapsed and which status it lapses into.
package services

import (
	"fmt"
	"time"

	"invoicer/internal/core"
)

// ExpiryChecker is the strategy interface for the overdue sweep.
type ExpiryChecker interface {
	// Lapsed returns the status d should move to at now, or false when the
	// document is still current.
	Lapsed(d core.Document, now time.Time) (core.Status, bool)
}

// InvoiceChecker marks issued invoices overdue the day after their due date.
type InvoiceChecker struct{}

// Lapsed implements ExpiryChecker. Pending invoices are left alone: the
// status machine only lets issued invoices become overdue.
func (InvoiceChecker) Lapsed(d core.Document, now time.Time) (core.Status, bool) {
	switch d.Status {
	case core.StatusSent, core.StatusPartiallyPaid:
	default:
		return "", false
	}
	if pastDay(d.DueDate, now) {
		return core.StatusOverdue, true
	}
	return "", false
}

// QuoteChecker expires sent estimates and quotes once their valid-until date
// (the due date) has passed.
type QuoteChecker struct{}

// Lapsed implements ExpiryChecker.
func (QuoteChecker) Lapsed(d core.Document, now time.Time) (core.Status, bool) {
	if d.Status != core.StatusSent {
		return "", false
	}
	if pastDay(d.DueDate, now) {
		return core.StatusExpired, true
	}
	return "", false
}

// InsuranceChecker expires active policies after the coverage end date, or
// the due date when no coverage end is recorded.
type InsuranceChecker struct{}

// Lapsed implements ExpiryChecker.
func (InsuranceChecker) Lapsed(d core.Document, now time.Time) (core.Status, bool) {
	if d.Status != core.StatusActive {
		return "", false
	}
	end := d.DueDate
	if ins := d.Details.Insurance; ins != nil && ins.CoverageEnd != "" {
		if t, err := time.Parse("2006-01-02", ins.CoverageEnd); err == nil {
			end = t
		}
	}
	if pastDay(end, now) {
		return core.StatusExpired, true
	}
	return "", false
}

// pastDay reports whether the calendar day of t is before the day of now.
// A zero t never lapses.
func pastDay(t, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	y, m, d := now.Date()
	return t.Before(time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
}

var expiryStrategies = map[core.Kind]ExpiryChecker{
	core.KindInvoice:   InvoiceChecker{},
	core.KindEstimate:  QuoteChecker{},
	core.KindQuote:     QuoteChecker{},
	core.KindInsurance: InsuranceChecker{},
}

// GetExpiryChecker returns the checker for a document kind.
func GetExpiryChecker(kind core.Kind) (ExpiryChecker, error) {
	checker, ok := expiryStrategies[kind]
	if !ok {
		return nil, fmt.Errorf("no expiry checker for kind: %s", kind)
	}
	return checker, nil
}

// RegisterExpiryChecker installs or replaces the checker for a kind.
func RegisterExpiryChecker(kind core.Kind, checker ExpiryChecker) {
	expiryStrategies[kind] = checker
}
