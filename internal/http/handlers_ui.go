package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"invoicer/internal/core"
	"invoicer/internal/export"
	"invoicer/internal/log"
	"invoicer/internal/render"
	"invoicer/internal/services"
)

// dashboardView is the dot of the dashboard templates.
type dashboardView struct {
	Tenant     string
	Overview   services.Overview
	Query      services.DashboardQuery
	RawQuery   string
	Kinds      []core.Kind
	Statuses   []core.Status
	Categories []string
	Layouts    []render.Layout
	Now        time.Time
}

func (s *Server) newDashboardView(r *http.Request, q services.DashboardQuery) dashboardView {
	return dashboardView{
		Tenant:     tenantOf(r),
		Query:      q,
		RawQuery:   r.URL.RawQuery,
		Kinds:      core.Kinds(),
		Statuses:   core.Statuses(),
		Categories: core.Categories(),
		Layouts:    s.renderer.Catalog().Layouts,
		Now:        time.Now(),
	}
}

func (v dashboardView) HasKind(k core.Kind) bool {
	for _, x := range v.Query.Filter.Kinds {
		if x == k {
			return true
		}
	}
	return false
}

func (v dashboardView) HasStatus(s core.Status) bool {
	for _, x := range v.Query.Filter.Statuses {
		if x == s {
			return true
		}
	}
	return false
}

// handleDashboard renders the main dashboard page
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q, err := ParseDashboardQuery(tenantOf(r), r.URL.Query())
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 7*time.Second)
	defer cancel()

	view := s.newDashboardView(r, q)
	view.Overview, err = s.dash.Overview(ctx, q)
	if err != nil {
		s.respondError(w, r, log.OpList, err)
		return
	}
	s.execute(w, r, "dashboard.html", view)
}

// handleKPIsPartial returns the KPI cards, reloaded on document:changed.
func (s *Server) handleKPIsPartial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 7*time.Second)
	defer cancel()

	view := s.newDashboardView(r, services.DashboardQuery{})
	k, err := s.dash.KPIs(ctx, view.Tenant)
	if err != nil {
		s.respondError(w, r, log.OpRead, err)
		return
	}
	view.Overview.KPIs = k
	s.execute(w, r, "kpis", view)
}

// handleDocumentsPartial returns the filtered document table.
func (s *Server) handleDocumentsPartial(w http.ResponseWriter, r *http.Request) {
	q, err := ParseDashboardQuery(tenantOf(r), r.URL.Query())
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 7*time.Second)
	defer cancel()

	view := s.newDashboardView(r, q)
	view.Overview.Documents, err = s.dash.Documents(ctx, q)
	if err != nil {
		s.respondError(w, r, log.OpList, err)
		return
	}
	s.execute(w, r, "documents", view)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", log.FieldTemplate, name, log.FieldError, err.Error())
		InternalServerError("Could not render page").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(buf.String()).Write(w)
}

// handlePrint renders the printable page. ?template= overrides the layout.
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	d, err := s.docs.Get(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, log.OpRender, err)
		return
	}
	html, err := s.renderer.RenderBytes(d, render.Options{Layout: r.URL.Query().Get("template")})
	if err != nil {
		s.respondError(w, r, log.OpRender, err)
		return
	}
	NewHTMXResponse().Body(html).Header("Content-Type", "text/html; charset=utf-8").Write(w)
}

// handlePDF prints the rendered page through the headless browser.
func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	if s.pdf == nil {
		ErrorResponse(http.StatusServiceUnavailable, "PDF export is not configured").Write(w)
		return
	}
	d, err := s.docs.Get(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, log.OpExport, err)
		return
	}
	html, err := s.renderer.RenderBytes(d, render.Options{Layout: r.URL.Query().Get("template")})
	if err != nil {
		s.respondError(w, r, log.OpRender, err)
		return
	}

	var buf bytes.Buffer
	if err := s.pdf.RenderPDF(r.Context(), html, &buf); err != nil {
		s.respondError(w, r, log.OpExport, err)
		return
	}
	disposition := "attachment"
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}
	NewHTMXResponse().
		Header("Content-Type", "application/pdf").
		Header("Content-Disposition", disposition+`; filename="`+render.Filename(d)+`"`).
		Body(buf.Bytes()).
		Write(w)
}

// handleExportXLSX downloads the filtered documents with a KPI summary.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	q, err := ParseDashboardQuery(tenantOf(r), r.URL.Query())
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	sortField, desc := q.Sort, q.Desc
	if sortField == "" {
		sortField, desc = core.SortIssueDate, true
	}
	docs, err := s.dash.All(r.Context(), q.Filter, sortField, desc)
	if err != nil {
		s.respondError(w, r, log.OpExport, err)
		return
	}
	kpis := core.ComputeKPIs(docs, time.Now())

	var buf bytes.Buffer
	if err := export.WriteDocumentsXLSX(&buf, docs, kpis); err != nil {
		s.respondError(w, r, log.OpExport, err)
		return
	}
	name := "documents-" + time.Now().Format("2006-01-02") + ".xlsx"
	NewHTMXResponse().
		Header("Content-Type", export.ContentTypeXLSX).
		Header("Content-Disposition", `attachment; filename="`+name+`"`).
		Body(buf.Bytes()).
		Write(w)
}
