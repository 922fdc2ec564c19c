// Package memory is an in-process ledger used when no spreadsheet is
// configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"invoicer/internal/core"
	"invoicer/internal/ports"
)

var _ ports.LedgerWriter = (*Ledger)(nil)

type Ledger struct {
	mu      sync.Mutex
	rows    map[string]core.Document
	removed map[string]bool
}

func New() *Ledger {
	return &Ledger{rows: make(map[string]core.Document), removed: make(map[string]bool)}
}

func (l *Ledger) UpsertDocument(_ context.Context, d core.Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[d.ID] = d
	delete(l.removed, d.ID)
	return nil
}

func (l *Ledger) RemoveDocument(_ context.Context, _ string, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rows[id]; ok {
		l.removed[id] = true
	}
	return nil
}

// Row returns the mirrored document and whether it is marked removed.
func (l *Ledger) Row(id string) (core.Document, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.rows[id]
	return d, ok, l.removed[id]
}

// IDs lists mirrored document ids in order.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.rows))
	for id := range l.rows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
