package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"invoicer/internal/auth"
	"invoicer/internal/log"
	"invoicer/internal/middleware/ratelimit"
	"invoicer/internal/middleware/security"
	"invoicer/internal/middleware/trace"
	"invoicer/internal/ports"
	"invoicer/internal/render"
	"invoicer/internal/services"
	appweb "invoicer/web"
)

// Deps are the collaborators of the web surface. PDF and Registry are
// optional: without them the PDF and metrics routes answer 503 and 404.
type Deps struct {
	Documents *services.DocumentService
	Dashboard *services.DashboardService
	Renderer  *render.Renderer
	Store     ports.DocumentStore
	PDF       ports.PDFRenderer
	Auth      *auth.Authenticator
	Registry  *prometheus.Registry
	Logger    *log.Logger
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server

	docs      *services.DocumentService
	dash      *services.DashboardService
	renderer  *render.Renderer
	store     ports.DocumentStore
	pdf       ports.PDFRenderer
	templates *template.Template
	logger    *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Documents == nil || deps.Dashboard == nil || deps.Renderer == nil || deps.Auth == nil {
		return nil, fmt.Errorf("server requires documents, dashboard, renderer and auth")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	t, err := template.New("web").Funcs(render.FuncMap()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse web templates: %w", err)
	}

	s := &Server{
		docs:      deps.Documents,
		dash:      deps.Dashboard,
		renderer:  deps.Renderer,
		store:     deps.Store,
		pdf:       deps.PDF,
		templates: t,
		logger:    logger.WithComponent(log.ComponentHTTP),
		limiter:   ratelimit.NewLimiter(deps.RateLimit),
		detector:  security.NewDetector(),
		started:   time.Now(),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

func (s *Server) routes(deps Deps) http.Handler {
	tracer := trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		tracer.Middleware,
		log.Middleware(s.logger),
		headers.Middleware,
		s.detector.Middleware,
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
	}

	r.Group(func(r chi.Router) {
		r.Use(
			deps.Auth.Middleware,
			s.limiter.Middleware(s.detector.ExtractClientIP),
		)

		r.Get("/", s.handleDashboard)
		r.Get("/ui/kpis", s.handleKPIsPartial)
		r.Get("/ui/documents", s.handleDocumentsPartial)
		r.Get("/documents/{id}", s.handlePrint)
		r.Get("/documents/{id}/pdf", s.handlePDF)
		r.Get("/export/documents.xlsx", s.handleExportXLSX)

		r.Route("/api", func(r chi.Router) {
			r.Get("/kpis", s.handleAPIKPIs)
			r.Get("/templates", s.handleAPITemplates)

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", s.handleListDocuments)
				r.Post("/", s.handleCreateDocument)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDocument)
					r.Put("/", s.handleUpdateDocument)
					r.Delete("/", s.handleDeleteDocument)
					r.Post("/status", s.handleTransition)
					r.Post("/payments", s.handlePayment)
					r.Post("/send", s.handleSend)
					r.Post("/convert", s.handleConvert)
				})
			})
		})
	})

	return r
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
