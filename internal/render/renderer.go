// Package render turns documents into printable HTML pages. Layouts and
// category panels are embedded html/templates selected through the catalog.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"invoicer/internal/core"
	"invoicer/internal/metrics"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Options tune a single render.
type Options struct {
	// Layout forces a layout id. Unknown ids are ignored.
	Layout string
}

// View is the data handed to a layout template.
type View struct {
	Doc         core.Document
	Totals      core.Totals
	Pages       []core.PrintPage
	Layout      Layout
	Category    Category
	Heading     string
	Notes       template.HTML
	Terms       template.HTML
	Detail      string // category whose panel is shown, empty for none
	DetailData  any
	Draft       bool
	GeneratedAt time.Time
}

// Renderer is safe for concurrent use.
type Renderer struct {
	catalog *Catalog
	tmpl    *template.Template
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	now     func() time.Time
}

// New parses the embedded templates and checks every catalog layout has one.
func New(catalog *Catalog) (*Renderer, error) {
	if catalog == nil {
		var err error
		if catalog, err = DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	tmpl, err := template.New("render").Funcs(FuncMap()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for _, l := range catalog.Layouts {
		if tmpl.Lookup("layout/"+l.ID) == nil {
			return nil, fmt.Errorf("layout %q has no template", l.ID)
		}
	}
	for _, c := range core.Categories() {
		if c != core.CategoryGeneral && tmpl.Lookup("details/"+c) == nil {
			return nil, fmt.Errorf("category %q has no detail panel", c)
		}
	}
	return &Renderer{
		catalog: catalog,
		tmpl:    tmpl,
		md:      goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough, extension.Table)),
		policy:  bluemonday.UGCPolicy(),
		now:     time.Now,
	}, nil
}

func (r *Renderer) Catalog() *Catalog { return r.catalog }

// ResolveLayout picks the layout: explicit option, then the document
// override, then the category default, then classic.
func (r *Renderer) ResolveLayout(d core.Document, opts Options) Layout {
	for _, id := range []string{opts.Layout, d.Template, r.catalog.Category(d.Category).Layout} {
		if id == "" {
			continue
		}
		if l, ok := r.catalog.Layout(id); ok {
			return l
		}
	}
	l, _ := r.catalog.Layout(DefaultLayout)
	return l
}

// View builds the template data for d.
func (r *Renderer) View(d core.Document, opts Options) (View, error) {
	layout := r.ResolveLayout(d, opts)
	notes, err := r.markdown(d.Notes)
	if err != nil {
		return View{}, fmt.Errorf("notes: %w", err)
	}
	terms, err := r.markdown(d.Terms)
	if err != nil {
		return View{}, fmt.Errorf("terms: %w", err)
	}
	heading := d.Kind.Label()
	if d.Kind == core.KindInvoice && d.Status == core.StatusPaid {
		heading = "Receipt"
	}
	detail, data := detailFor(d)
	return View{
		Doc:         d,
		Totals:      core.ComputeTotals(d),
		Pages:       core.PaginateItems(d.Items, layout.RowsFirstPage, layout.RowsPerPage),
		Layout:      layout,
		Category:    r.catalog.Category(d.Category),
		Heading:     heading,
		Notes:       notes,
		Terms:       terms,
		Detail:      detail,
		DetailData:  data,
		Draft:       d.Status == core.StatusDraft,
		GeneratedAt: r.now().UTC(),
	}, nil
}

// Render writes the printable page set of d to w. Nothing is written when
// execution fails.
func (r *Renderer) Render(w io.Writer, d core.Document, opts Options) error {
	b, err := r.RenderBytes(d, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// RenderBytes renders d into memory, e.g. for PDF export.
func (r *Renderer) RenderBytes(d core.Document, opts Options) ([]byte, error) {
	v, err := r.View(d, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "layout/"+v.Layout.ID, v); err != nil {
		return nil, fmt.Errorf("render %s with %s: %w", d.Number, v.Layout.ID, err)
	}
	metrics.Renders.WithLabelValues(v.Layout.ID).Inc()
	return buf.Bytes(), nil
}

func (r *Renderer) markdown(src string) (template.HTML, error) {
	if src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// detailFor returns the panel to show: only the block matching the
// document category, and only when it is present.
func detailFor(d core.Document) (string, any) {
	x := d.Details
	var v any
	switch d.Category {
	case core.CategoryPlumbing:
		v = nilIfEmpty(x.Plumbing)
	case core.CategoryElectrical:
		v = nilIfEmpty(x.Electrical)
	case core.CategoryConstruction:
		v = nilIfEmpty(x.Construction)
	case core.CategoryLandscaping:
		v = nilIfEmpty(x.Landscaping)
	case core.CategoryCleaning:
		v = nilIfEmpty(x.Cleaning)
	case core.CategoryLegal:
		v = nilIfEmpty(x.Legal)
	case core.CategoryConsulting:
		v = nilIfEmpty(x.Consulting)
	case core.CategoryPhotography:
		v = nilIfEmpty(x.Photography)
	case core.CategoryMedical:
		v = nilIfEmpty(x.Medical)
	case core.CategoryAutomotive:
		v = nilIfEmpty(x.Automotive)
	case core.CategoryCatering:
		v = nilIfEmpty(x.Catering)
	case core.CategoryEventPlanning:
		v = nilIfEmpty(x.EventPlanning)
	case core.CategoryRealEstate:
		v = nilIfEmpty(x.RealEstate)
	case core.CategoryFreelance:
		v = nilIfEmpty(x.Freelance)
	case core.CategoryITServices:
		v = nilIfEmpty(x.ITServices)
	case core.CategoryEducation:
		v = nilIfEmpty(x.Education)
	case core.CategoryInsurance:
		v = nilIfEmpty(x.Insurance)
	}
	if v == nil {
		return "", nil
	}
	return d.Category, v
}

func nilIfEmpty[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

// Filename is the download name of a document's PDF, e.g.
// "invoice-INV-0001.pdf".
func Filename(d core.Document) string {
	name := string(d.Kind)
	if d.Number != "" {
		name += "-" + d.Number
	} else {
		name += "-" + d.ID
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name) + ".pdf"
}
