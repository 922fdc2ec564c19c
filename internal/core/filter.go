package core

import (
	"sort"
	"strings"
	"time"
)

// Filter selects documents for the dashboard. Zero fields match everything.
type Filter struct {
	TenantID       string
	Kinds          []Kind
	Statuses       []Status
	Category       string
	Query          string
	IssuedFrom     time.Time
	IssuedTo       time.Time // inclusive, whole day
	DueBefore      time.Time
	IncludeDeleted bool
}

// Match reports whether the document passes the filter.
func (f Filter) Match(d Document) bool {
	if f.TenantID != "" && d.TenantID != f.TenantID {
		return false
	}
	if d.Deleted && !f.IncludeDeleted {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, d.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, d.Status) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, categoryOf(d)) {
		return false
	}
	if !f.IssuedFrom.IsZero() && d.IssueDate.Before(f.IssuedFrom) {
		return false
	}
	if !f.IssuedTo.IsZero() && !d.IssueDate.Before(f.IssuedTo.AddDate(0, 0, 1)) {
		return false
	}
	if !f.DueBefore.IsZero() && (d.DueDate.IsZero() || !d.DueDate.Before(f.DueBefore)) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		hay := []string{d.Number, d.Title, d.Client.Name, d.Client.Company, d.Client.Email}
		found := false
		for _, h := range hay {
			if strings.Contains(strings.ToLower(h), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply returns the matching documents, preserving order.
func (f Filter) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	return out
}

func categoryOf(d Document) string {
	if d.Category == "" {
		return CategoryGeneral
	}
	return d.Category
}

func containsKind(ks []Kind, k Kind) bool {
	for _, v := range ks {
		if v == k {
			return true
		}
	}
	return false
}

func containsStatus(ss []Status, s Status) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Sort fields accepted by Sort.
const (
	SortIssueDate = "issue_date"
	SortDueDate   = "due_date"
	SortNumber    = "number"
	SortClient    = "client"
	SortTotal     = "total"
)

// Sort orders docs in place. Unknown fields sort by issue date. Ties are
// ordered by number ascending.
func Sort(docs []Document, field string, desc bool) {
	var less func(a, b Document) int
	switch field {
	case SortDueDate:
		less = func(a, b Document) int { return a.DueDate.Compare(b.DueDate) }
	case SortNumber:
		less = func(a, b Document) int { return strings.Compare(a.Number, b.Number) }
	case SortClient:
		less = func(a, b Document) int {
			return strings.Compare(strings.ToLower(a.ClientLabel()), strings.ToLower(b.ClientLabel()))
		}
	case SortTotal:
		less = func(a, b Document) int { return a.GrandTotal().Cmp(b.GrandTotal()) }
	default:
		less = func(a, b Document) int { return a.IssueDate.Compare(b.IssueDate) }
	}
	sort.SliceStable(docs, func(i, j int) bool {
		c := less(docs[i], docs[j])
		if desc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(docs[i].Number, docs[j].Number)
		}
		return c < 0
	})
}
