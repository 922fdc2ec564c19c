package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"invoicer/internal/core"
	"invoicer/internal/metrics"
	"invoicer/internal/ports"
	"invoicer/internal/storage"
)

// PendingSource tracks which document versions still need to reach the
// ledger. The sqlite repository implements it.
type PendingSource interface {
	ListPendingLedgerSync(ctx context.Context, limit int) ([]storage.PendingLedgerSync, error)
	MarkLedgerSynced(ctx context.Context, id string, version int64) error
	MarkLedgerSyncError(ctx context.Context, id string, err error) error
}

// LedgerConfig holds configuration for the ledger worker.
type LedgerConfig struct {
	// PollInterval is how often pending documents are scanned (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of documents synced per scan (default: 10)
	BatchSize int
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
	}
}

// LedgerWorker mirrors document changes into the ledger spreadsheet. Events
// give low latency; the pending scan catches whatever events missed.
type LedgerWorker struct {
	store   ports.DocumentReader
	ledger  ports.LedgerWriter
	pending PendingSource
	config  LedgerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLedgerWorker wires the worker. pending may be nil, in which case only
// events are handled and Start is a no-op.
func NewLedgerWorker(store ports.DocumentReader, ledger ports.LedgerWriter, pending PendingSource, config LedgerConfig) *LedgerWorker {
	def := DefaultLedgerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &LedgerWorker{
		store:   store,
		ledger:  ledger,
		pending: pending,
		config:  config,
	}
}

// HandleEvent applies one document event to the ledger.
func (w *LedgerWorker) HandleEvent(ctx context.Context, ev ports.Event) error {
	switch ev.Type {
	case ports.EventDocumentCreated, ports.EventDocumentUpdated, ports.EventDocumentStatusChanged:
		return w.sync(ctx, ev.TenantID, ev.DocumentID)
	case ports.EventDocumentDeleted:
		return w.remove(ctx, ev.TenantID, ev.DocumentID)
	default:
		return nil
	}
}

// sync upserts the current document. A document deleted since the event
// was published is removed instead.
func (w *LedgerWorker) sync(ctx context.Context, tenantID, id string) error {
	d, err := w.store.Get(ctx, tenantID, id)
	if errors.Is(err, core.ErrNotFound) {
		return w.remove(ctx, tenantID, id)
	}
	if err != nil {
		return fmt.Errorf("get document %s: %w", id, err)
	}
	if err := w.ledger.UpsertDocument(ctx, d); err != nil {
		metrics.LedgerSyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("upsert ledger row: %w", err)
	}
	metrics.LedgerSyncs.WithLabelValues("upserted").Inc()

	slog.InfoContext(ctx, "Synced document to ledger",
		"tenant_id", tenantID,
		"document_id", id,
		"document_number", d.Number,
		"status", d.Status)
	return nil
}

func (w *LedgerWorker) remove(ctx context.Context, tenantID, id string) error {
	if err := w.ledger.RemoveDocument(ctx, tenantID, id); err != nil {
		metrics.LedgerSyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("remove ledger row: %w", err)
	}
	metrics.LedgerSyncs.WithLabelValues("removed").Inc()
	slog.InfoContext(ctx, "Removed document from ledger", "tenant_id", tenantID, "document_id", id)
	return nil
}

// ProcessPending syncs one batch of pending documents and returns how many
// reached the ledger.
func (w *LedgerWorker) ProcessPending(ctx context.Context) (int, error) {
	if w.pending == nil {
		return 0, nil
	}
	items, err := w.pending.ListPendingLedgerSync(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	slog.DebugContext(ctx, "Processing ledger batch", "count", len(items))

	synced := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		var syncErr error
		if item.Deleted {
			syncErr = w.remove(ctx, item.TenantID, item.ID)
		} else {
			syncErr = w.sync(ctx, item.TenantID, item.ID)
		}
		if syncErr != nil {
			slog.WarnContext(ctx, "Ledger sync failed", "document_id", item.ID, "version", item.Version, "error", syncErr)
			if err := w.pending.MarkLedgerSyncError(ctx, item.ID, syncErr); err != nil {
				slog.ErrorContext(ctx, "Failed to record ledger sync error", "document_id", item.ID, "error", err)
			}
			continue
		}
		if err := w.pending.MarkLedgerSynced(ctx, item.ID, item.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to mark document synced", "document_id", item.ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// StartupSyncCheck drains the pending backlog left by a previous run.
func (w *LedgerWorker) StartupSyncCheck(ctx context.Context) error {
	if w.pending == nil {
		return nil
	}
	total := 0
	for {
		n, err := w.ProcessPending(ctx)
		total += n
		if err != nil {
			return err
		}
		if n < w.config.BatchSize {
			break
		}
	}
	if total > 0 {
		slog.InfoContext(ctx, "Startup ledger sync complete", "synced", total)
	}
	return nil
}

// Start begins the pending scan loop. Returns an error if already running.
func (w *LedgerWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("ledger worker is already running")
	}
	if w.pending == nil {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Ledger worker started",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (w *LedgerWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Ledger worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Ledger worker stop timed out")
		return ctx.Err()
	}
}

func (w *LedgerWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// runLoop owns the channels of one Start; a later Start gets its own pair.
func (w *LedgerWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.scan(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *LedgerWorker) scan(ctx context.Context) {
	if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Ledger scan failed", "error", err)
	}
}
