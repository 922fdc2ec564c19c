package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"invoicer/internal/auth"
	"invoicer/internal/core"
	"invoicer/internal/log"
	"invoicer/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().BodyJSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the store, the web templates and the layout catalog.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.store == nil {
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	checks["catalog"] = map[string]interface{}{
		"layouts":    len(s.renderer.Catalog().Layouts),
		"categories": len(s.renderer.Catalog().Categories),
	}
	checks["pdf"] = s.pdf != nil
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
	}

	NewHTMXResponse().
		Status(httpStatus).
		BodyJSON(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}).
		Write(w)
}

// statusFor maps domain and service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrMissingTenant):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrDuplicateNumber),
		errors.Is(err, services.ErrNotSendable),
		errors.Is(err, services.ErrNotConvertible):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrEmptyNumber),
		errors.Is(err, core.ErrEmptyClient),
		errors.Is(err, core.ErrNoItems),
		errors.Is(err, core.ErrNegativeAmount),
		errors.Is(err, core.ErrDueBeforeIssue),
		errors.Is(err, core.ErrDiscountTooLarge),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, services.ErrNoRecipient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrDeliveryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError writes err as an HTML fragment for htmx and as JSON
// otherwise. Server errors are logged; internal ones are not echoed.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		log.NewStructuredLogger(s.logger).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
	}
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}

	if isHTMX(r) {
		ErrorResponse(code, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	JSONError(code, msg).Write(w)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	if isHTMX(r) {
		BadRequestError(msg).Write(w)
		return
	}
	JSONError(http.StatusBadRequest, msg).Write(w)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// tenantOf returns the tenant placed on the context by the auth middleware.
func tenantOf(r *http.Request) string {
	t, _ := auth.TenantFrom(r.Context())
	return t
}
