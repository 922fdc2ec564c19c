package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"invoicer/internal/core"
	"invoicer/internal/metrics"
	"invoicer/internal/ports"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	Tenants int
	Checked int
	Moved   int
	Failed  int
}

// OverdueProcessor moves lapsed documents to overdue or expired.
type OverdueProcessor struct {
	docs    *DocumentService
	store   ports.DocumentReader
	tenants ports.TenantLister
}

func NewOverdueProcessor(docs *DocumentService, store ports.DocumentReader, tenants ports.TenantLister) *OverdueProcessor {
	return &OverdueProcessor{docs: docs, store: store, tenants: tenants}
}

// Sweep checks every tenant.
func (p *OverdueProcessor) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if p.docs == nil || p.store == nil || p.tenants == nil {
		return SweepResult{}, errors.New("processor not properly initialized")
	}
	tenants, err := p.tenants.Tenants(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list tenants: %w", err)
	}

	var total SweepResult
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		r, err := p.SweepTenant(ctx, t, now)
		total.Tenants++
		total.Checked += r.Checked
		total.Moved += r.Moved
		total.Failed += r.Failed
		if err != nil {
			slog.ErrorContext(ctx, "Sweep failed for tenant", "tenant_id", t, "error", err)
		}
	}

	slog.InfoContext(ctx, "Overdue sweep complete",
		"tenants", total.Tenants,
		"checked", total.Checked,
		"moved", total.Moved,
		"failed", total.Failed)
	return total, nil
}

// SweepTenant checks the open documents of one tenant.
func (p *OverdueProcessor) SweepTenant(ctx context.Context, tenantID string, now time.Time) (SweepResult, error) {
	docs, err := p.store.List(ctx, core.Filter{
		TenantID: tenantID,
		Statuses: []core.Status{core.StatusSent, core.StatusPartiallyPaid, core.StatusActive},
	})
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Checked: len(docs)}
	for _, d := range docs {
		checker, err := GetExpiryChecker(d.Kind)
		if err != nil {
			continue
		}
		to, lapsed := checker.Lapsed(d, now)
		if !lapsed || !core.CanTransition(d.Kind, d.Status, to) {
			continue
		}
		if _, err := p.docs.Transition(ctx, tenantID, d.ID, to); err != nil {
			res.Failed++
			slog.ErrorContext(ctx, "Failed to move lapsed document",
				"tenant_id", tenantID,
				"document_id", d.ID,
				"document_number", d.Number,
				"status", to,
				"error", err)
			continue
		}
		res.Moved++
		metrics.SweepTransitions.WithLabelValues(string(d.Kind), string(to)).Inc()
		slog.InfoContext(ctx, "Document lapsed",
			"tenant_id", tenantID,
			"document_number", d.Number,
			"from", d.Status,
			"to", to)
	}
	return res, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (p *OverdueProcessor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := p.Sweep(ctx, time.Now()); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Overdue sweep failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Sweep(ctx, time.Now()); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Overdue sweep failed", "error", err)
			}
		}
	}
}
