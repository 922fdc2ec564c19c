// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: dashboard filters from query strings and document bodies.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"invoicer/internal/core"
	"invoicer/internal/services"
)

// maxBodyBytes bounds JSON and form bodies.
const maxBodyBytes = 1 << 20

// ParseDashboardQuery reads listing parameters:
//
//	kind, status     repeated or comma separated
//	category, q      exact category, free text
//	from, to         issue date range, YYYY-MM-DD
//	due_before       YYYY-MM-DD
//	sort, order      sort field and asc|desc
//	page, size       1-based page and page size
func ParseDashboardQuery(tenantID string, query url.Values) (services.DashboardQuery, error) {
	q := services.DashboardQuery{Filter: core.Filter{TenantID: tenantID}}

	for _, v := range splitValues(query["kind"]) {
		k := core.Kind(v)
		if !k.IsValid() {
			return q, fmt.Errorf("unknown kind %q", v)
		}
		q.Filter.Kinds = append(q.Filter.Kinds, k)
	}
	for _, v := range splitValues(query["status"]) {
		q.Filter.Statuses = append(q.Filter.Statuses, core.Status(v))
	}

	if v := strings.TrimSpace(query.Get("category")); v != "" {
		if !core.IsCategory(v) {
			return q, fmt.Errorf("unknown category %q", v)
		}
		q.Filter.Category = v
	}
	q.Filter.Query = sanitizeInput(query.Get("q"))

	var err error
	if q.Filter.IssuedFrom, err = parseDay(query.Get("from")); err != nil {
		return q, fmt.Errorf("invalid from date: %w", err)
	}
	if q.Filter.IssuedTo, err = parseDay(query.Get("to")); err != nil {
		return q, fmt.Errorf("invalid to date: %w", err)
	}
	if q.Filter.DueBefore, err = parseDay(query.Get("due_before")); err != nil {
		return q, fmt.Errorf("invalid due_before date: %w", err)
	}

	q.Sort = strings.TrimSpace(query.Get("sort"))
	switch strings.ToLower(strings.TrimSpace(query.Get("order"))) {
	case "", "desc":
		q.Desc = true
	case "asc":
		q.Desc = false
	default:
		return q, fmt.Errorf("invalid order %q", query.Get("order"))
	}

	q.Page = atoiDefault(query.Get("page"), 1)
	q.Size = atoiDefault(query.Get("size"), core.DefaultPageSize)
	return q, nil
}

// splitValues flattens repeated and comma separated parameters.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

// DecodeDocument reads a JSON document body.
func DecodeDocument(r *http.Request) (core.Document, error) {
	var d core.Document
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&d); err != nil {
		return core.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

// RequestBodyParser reads small action bodies sent either as JSON by API
// clients or form-encoded by htmx.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]interface{}
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body once and stores it for parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims and removes control characters except tab and
// newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
