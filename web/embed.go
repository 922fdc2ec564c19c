// Package web holds the dashboard templates and assets served by
// internal/http. The printable document layouts live in internal/render.
package web

import "embed"

// TemplatesFS holds the dashboard page and its htmx partials.
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the dashboard stylesheet and script.
//go:embed static/*
var StaticFS embed.FS
