package render

import (
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoicer/internal/core"
)

// PageView is the dot of the per-page partials.
type PageView struct {
	View
	Page core.PrintPage
}

// FuncMap holds the formatting helpers shared by the printable layouts and
// the dashboard templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"money": func(d decimal.Decimal, currency string) string {
			return core.FormatMoney(d, currency)
		},
		"qty": func(d decimal.Decimal) string {
			return d.String()
		},
		"pct": func(d decimal.Decimal) string {
			return d.Round(3).String() + "%"
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"isodate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"statusLabel":   func(s core.Status) string { return s.Label() },
		"kindLabel":     func(k core.Kind) string { return k.Label() },
		"categoryLabel": core.CategoryLabel,
		"upper":         strings.ToUpper,
		"add":           func(a, b int) int { return a + b },
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
		// line returns the computed amount of the item at absolute index i.
		"line": func(t core.Totals, i int) decimal.Decimal {
			if i < 0 || i >= len(t.Lines) {
				return decimal.Zero
			}
			return t.Lines[i]
		},
		"page": func(v View, p core.PrintPage) PageView {
			return PageView{View: v, Page: p}
		},
		// filler pads short pages so ruled layouts keep their grid.
		"filler": func(rows, used int) []int {
			if rows <= used {
				return nil
			}
			return make([]int, rows-used)
		},
	}
}
