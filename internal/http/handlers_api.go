package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"invoicer/internal/core"
	"invoicer/internal/log"
)

// documentJSON is a document with its computed totals.
type documentJSON struct {
	core.Document
	Totals core.Totals `json:"totals"`
}

func withTotals(d core.Document) documentJSON {
	return documentJSON{Document: d, Totals: core.ComputeTotals(d)}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q, err := ParseDashboardQuery(tenantOf(r), r.URL.Query())
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	page, err := s.dash.Documents(r.Context(), q)
	if err != nil {
		s.respondError(w, r, log.OpList, err)
		return
	}
	NewHTMXResponse().BodyJSON(page).Write(w)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	d, err := s.docs.Get(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, log.OpRead, err)
		return
	}
	NewHTMXResponse().BodyJSON(withTotals(d)).Write(w)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	in, err := DecodeDocument(r)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	d, err := s.docs.Create(r.Context(), tenantOf(r), in)
	if err != nil {
		s.respondError(w, r, log.OpCreate, err)
		return
	}
	NewHTMXResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/documents/"+d.ID).
		TriggerDocumentChanged(d.ID, string(d.Status)).
		BodyJSON(withTotals(d)).
		Write(w)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	in, err := DecodeDocument(r)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	d, err := s.docs.Update(r.Context(), tenantOf(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.respondError(w, r, log.OpUpdate, err)
		return
	}
	NewHTMXResponse().
		TriggerDocumentChanged(d.ID, string(d.Status)).
		BodyJSON(withTotals(d)).
		Write(w)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.docs.Delete(r.Context(), tenantOf(r), id); err != nil {
		s.respondError(w, r, log.OpDelete, err)
		return
	}
	if isHTMX(r) {
		NewHTMXResponse().
			TriggerDocumentChanged(id, "deleted").
			TriggerSuccessNotification("Document deleted").
			Write(w)
		return
	}
	NewHTMXResponse().Status(http.StatusNoContent).Write(w)
}

// handleTransition accepts {"status": "..."} or status=... from htmx.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	to := core.Status(body.Get("status"))
	if to == "" {
		s.badRequest(w, r, "status is required")
		return
	}
	d, err := s.docs.Transition(r.Context(), tenantOf(r), chi.URLParam(r, "id"), to)
	if err != nil {
		s.respondError(w, r, log.OpTransition, err)
		return
	}
	s.respondWritten(w, r, d, d.Number+" is now "+d.Status.Label())
}

// handlePayment accepts {"amount": "12.34"} or amount=... from htmx.
func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	amount, err := core.ParseAmount(body.Get("amount"))
	if err != nil {
		s.respondError(w, r, log.OpUpdate, err)
		return
	}
	d, err := s.docs.RecordPayment(r.Context(), tenantOf(r), chi.URLParam(r, "id"), amount)
	if err != nil {
		s.respondError(w, r, log.OpUpdate, err)
		return
	}
	s.respondWritten(w, r, d, "Payment recorded on "+d.Number)
}

// handleSend queues delivery; the worker marks the document sent.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	d, err := s.docs.Send(r.Context(), tenantOf(r), chi.URLParam(r, "id"), body.Get("recipient"))
	if err != nil {
		s.respondError(w, r, log.OpSend, err)
		return
	}
	if isHTMX(r) {
		NewHTMXResponse().
			Status(http.StatusAccepted).
			TriggerSuccessNotification(d.Number + " queued for delivery").
			Write(w)
		return
	}
	NewHTMXResponse().
		Status(http.StatusAccepted).
		BodyJSON(map[string]string{"status": "queued", "document_id": d.ID}).
		Write(w)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	inv, err := s.docs.Convert(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, log.OpConvert, err)
		return
	}
	if isHTMX(r) {
		NewHTMXResponse().
			Status(http.StatusCreated).
			TriggerDocumentChanged(inv.ID, string(inv.Status)).
			TriggerSuccessNotification("Created invoice " + inv.Number).
			Write(w)
		return
	}
	NewHTMXResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/documents/"+inv.ID).
		BodyJSON(withTotals(inv)).
		Write(w)
}

func (s *Server) handleAPIKPIs(w http.ResponseWriter, r *http.Request) {
	k, err := s.dash.KPIs(r.Context(), tenantOf(r))
	if err != nil {
		s.respondError(w, r, log.OpRead, err)
		return
	}
	NewHTMXResponse().BodyJSON(k).Write(w)
}

// handleAPITemplates lists the printable layouts and category defaults.
func (s *Server) handleAPITemplates(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().BodyJSON(s.renderer.Catalog()).Write(w)
}

// respondWritten answers a successful write: a trigger and notification
// for htmx, the document for API clients.
func (s *Server) respondWritten(w http.ResponseWriter, r *http.Request, d core.Document, message string) {
	if isHTMX(r) {
		NewHTMXResponse().
			TriggerDocumentChanged(d.ID, string(d.Status)).
			TriggerSuccessNotification(message).
			Write(w)
		return
	}
	NewHTMXResponse().BodyJSON(withTotals(d)).Write(w)
}
