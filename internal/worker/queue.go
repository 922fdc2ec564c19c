package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"invoicer/internal/ports"
	"invoicer/internal/services"
)

// ErrQueueFull is returned when the in-process queue cannot take another event.
var ErrQueueFull = errors.New("event queue is full")

// Queue is an in-process event queue for backends that a separate worker
// process cannot open. It implements ports.EventPublisher and
// services.DeliveryChecker, and is drained by Run.
type Queue struct {
	events   chan ports.Event
	delivers atomic.Bool

	// MaxAttempts bounds how often a failing event is handled before it is
	// dropped. RetryDelay doubles after each attempt.
	MaxAttempts int
	RetryDelay  time.Duration
}

// NewQueue creates a queue holding up to size pending events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		events:      make(chan ports.Event, size),
		MaxAttempts: 5,
		RetryDelay:  time.Second,
	}
}

// PublishDocumentEvent enqueues ev. It fails rather than block the request
// when the queue is full.
func (q *Queue) PublishDocumentEvent(ctx context.Context, ev ports.Event) error {
	select {
	case q.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// SetDelivers records whether a delivery handler drains the queue.
func (q *Queue) SetDelivers(ok bool) { q.delivers.Store(ok) }

// CanDeliver implements services.DeliveryChecker.
func (q *Queue) CanDeliver() bool { return q.delivers.Load() }

// Len reports the number of events waiting.
func (q *Queue) Len() int { return len(q.events) }

// Run hands queued events to handler until ctx is done. It has the shape of
// amqp.Client.Consume so the same dispatcher serves both.
func (q *Queue) Run(ctx context.Context, handler func(context.Context, ports.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-q.events:
			q.handle(ctx, handler, ev)
		}
	}
}

func (q *Queue) handle(ctx context.Context, handler func(context.Context, ports.Event) error, ev ports.Event) {
	attempts := max(q.MaxAttempts, 1)
	delay := q.RetryDelay
	for i := 1; ; i++ {
		err := handler(ctx, ev)
		if err == nil {
			return
		}
		if i >= attempts || ctx.Err() != nil {
			slog.ErrorContext(ctx, "Dropping document event after failed attempts",
				"error", err,
				"attempts", i,
				"event_type", ev.Type,
				"document_id", ev.DocumentID)
			return
		}
		slog.WarnContext(ctx, "Document event failed, retrying",
			"error", err,
			"attempt", i,
			"retry_in", delay,
			"event_type", ev.Type,
			"document_id", ev.DocumentID)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Local runs the event handlers and the overdue sweep inside the server
// process. Delivery and Sweeper may be nil.
type Local struct {
	Queue      *Queue
	Ledger     *LedgerWorker
	Delivery   *DeliveryWorker
	Sweeper    *services.OverdueProcessor
	SweepEvery time.Duration
}

// Run blocks until ctx is done or a component fails.
func (l *Local) Run(ctx context.Context) error {
	l.Queue.SetDelivers(l.Delivery != nil)
	dispatcher := NewDispatcher(l.Ledger, l.Delivery)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(gctx, "Handling document events in-process", "handlers", dispatcher.Len())
		return l.Queue.Run(gctx, dispatcher.Handle)
	})
	if l.Sweeper != nil {
		g.Go(func() error {
			slog.InfoContext(gctx, "Overdue sweeper started", "interval", l.SweepEvery)
			return l.Sweeper.Run(gctx, l.SweepEvery)
		})
	}
	return g.Wait()
}
