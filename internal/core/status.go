package core

import (
	"fmt"
	"time"
)

const (
	StatusDraft         Status = "draft"
	StatusPending       Status = "pending"
	StatusSent          Status = "sent"
	StatusPaid          Status = "paid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusOverdue       Status = "overdue"
	StatusCancelled     Status = "cancelled"
	StatusAccepted      Status = "accepted"
	StatusDeclined      Status = "declined"
	StatusExpired       Status = "expired"
	StatusActive        Status = "active"
)

// Status is the lifecycle state of a document.
type Status string

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusDraft, StatusPending, StatusSent, StatusPartiallyPaid, StatusPaid, StatusOverdue,
		StatusAccepted, StatusDeclined, StatusExpired, StatusActive, StatusCancelled,
	}
}

// transitions maps kind -> from -> allowed targets.
var transitions = map[Kind]map[Status][]Status{
	KindInvoice: {
		StatusDraft:         {StatusPending, StatusSent, StatusCancelled},
		StatusPending:       {StatusSent, StatusPaid, StatusPartiallyPaid, StatusCancelled},
		StatusSent:          {StatusPaid, StatusPartiallyPaid, StatusOverdue, StatusCancelled},
		StatusPartiallyPaid: {StatusPaid, StatusOverdue, StatusCancelled},
		StatusOverdue:       {StatusPaid, StatusPartiallyPaid, StatusCancelled},
		StatusPaid:          {},
		StatusCancelled:     {StatusDraft},
	},
	KindEstimate: quoteTransitions(),
	KindQuote:    quoteTransitions(),
	KindInsurance: {
		StatusDraft:     {StatusActive, StatusCancelled},
		StatusActive:    {StatusExpired, StatusCancelled},
		StatusExpired:   {StatusActive},
		StatusCancelled: {StatusDraft},
	},
}

func quoteTransitions() map[Status][]Status {
	return map[Status][]Status{
		StatusDraft:     {StatusSent, StatusCancelled},
		StatusSent:      {StatusAccepted, StatusDeclined, StatusExpired, StatusCancelled},
		StatusAccepted:  {},
		StatusDeclined:  {StatusDraft},
		StatusExpired:   {StatusDraft},
		StatusCancelled: {StatusDraft},
	}
}

// Statuses returns the statuses a kind may be in, in lifecycle order.
func (k Kind) Statuses() []Status {
	switch k {
	case KindInvoice:
		return []Status{StatusDraft, StatusPending, StatusSent, StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled}
	case KindEstimate, KindQuote:
		return []Status{StatusDraft, StatusSent, StatusAccepted, StatusDeclined, StatusExpired, StatusCancelled}
	case KindInsurance:
		return []Status{StatusDraft, StatusActive, StatusExpired, StatusCancelled}
	}
	return nil
}

// Allows reports whether s is a valid status for the kind.
func (k Kind) Allows(s Status) bool {
	_, ok := transitions[k][s]
	return ok
}

// CanTransition reports whether a document of the given kind may move from
// one status to another.
func CanTransition(k Kind, from, to Status) bool {
	for _, s := range transitions[k][from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the document to the target status. Paying an invoice
// settles the full balance.
func (d *Document) Transition(to Status, now time.Time) error {
	if !d.Kind.Allows(to) {
		return fmt.Errorf("%w: %s cannot be %q", ErrInvalidStatus, d.Kind, to)
	}
	if !CanTransition(d.Kind, d.Status, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, d.Kind, d.Status, to)
	}
	switch to {
	case StatusPaid:
		d.Summary.AmountPaid = ComputeTotals(*d).GrandTotal
		d.PaidAt = now
	case StatusSent:
		d.SentAt = now
	}
	d.Status = to
	d.UpdatedAt = now
	return nil
}

// Label returns the display label for a status.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusPending:
		return "Pending"
	case StatusSent:
		return "Sent"
	case StatusPaid:
		return "Paid"
	case StatusPartiallyPaid:
		return "Partially paid"
	case StatusOverdue:
		return "Overdue"
	case StatusCancelled:
		return "Cancelled"
	case StatusAccepted:
		return "Accepted"
	case StatusDeclined:
		return "Declined"
	case StatusExpired:
		return "Expired"
	case StatusActive:
		return "Active"
	}
	return string(s)
}
