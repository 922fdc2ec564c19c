package worker

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"

	"invoicer/internal/ports"
)

// Handler consumes one document event.
type Handler interface {
	HandleEvent(ctx context.Context, ev ports.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev ports.Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, ev ports.Event) error { return f(ctx, ev) }

// Dispatcher hands every event to each registered handler. Handlers must be
// idempotent: a failure in any of them requeues the event for all.
type Dispatcher struct {
	handlers []Handler
}

// NewDispatcher skips nil handlers so optional workers can be passed as-is.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	d := &Dispatcher{}
	for _, h := range handlers {
		if h != nil && !isNilHandler(h) {
			d.handlers = append(d.handlers, h)
		}
	}
	return d
}

// Handle matches the consumer callback of amqp.Client.Consume.
func (d *Dispatcher) Handle(ctx context.Context, ev ports.Event) error {
	slog.DebugContext(ctx, "Dispatching document event",
		"event_type", ev.Type,
		"tenant_id", ev.TenantID,
		"document_id", ev.DocumentID)

	var errs error
	for _, h := range d.handlers {
		errs = multierr.Append(errs, h.HandleEvent(ctx, ev))
	}
	return errs
}

// Len reports the number of registered handlers.
func (d *Dispatcher) Len() int { return len(d.handlers) }

func isNilHandler(h Handler) bool {
	switch v := h.(type) {
	case *LedgerWorker:
		return v == nil
	case *DeliveryWorker:
		return v == nil
	}
	return false
}
