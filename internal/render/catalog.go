package render

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"invoicer/internal/core"
)

//go:embed catalog.yaml
var catalogYAML []byte

// DefaultLayout is used when nothing else selects a layout.
const DefaultLayout = "classic"

// Layout describes one printable template.
type Layout struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description"`
	Accent        string `yaml:"accent" json:"accent"`
	RowsFirstPage int    `yaml:"rows_first_page" json:"rows_first_page"`
	RowsPerPage   int    `yaml:"rows_per_page" json:"rows_per_page"`
}

// Category maps a business category to its default layout and the title
// of its detail panel.
type Category struct {
	ID     string `yaml:"id" json:"id"`
	Label  string `yaml:"label" json:"label"`
	Layout string `yaml:"layout" json:"layout"`
	Panel  string `yaml:"panel" json:"panel,omitempty"`
}

type Catalog struct {
	Layouts    []Layout   `yaml:"layouts" json:"layouts"`
	Categories []Category `yaml:"categories" json:"categories"`

	layouts    map[string]Layout
	categories map[string]Category
}

// ParseCatalog decodes and checks a catalog: unique ids, known categories,
// category layouts that exist and positive row counts.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c.layouts = make(map[string]Layout, len(c.Layouts))
	for _, l := range c.Layouts {
		if l.ID == "" {
			return nil, fmt.Errorf("layout without id")
		}
		if _, dup := c.layouts[l.ID]; dup {
			return nil, fmt.Errorf("duplicate layout %q", l.ID)
		}
		if l.RowsFirstPage < 1 || l.RowsPerPage < 1 {
			return nil, fmt.Errorf("layout %q: row counts must be positive", l.ID)
		}
		c.layouts[l.ID] = l
	}
	if _, ok := c.layouts[DefaultLayout]; !ok {
		return nil, fmt.Errorf("catalog has no %q layout", DefaultLayout)
	}
	c.categories = make(map[string]Category, len(c.Categories))
	for _, cat := range c.Categories {
		if !core.IsCategory(cat.ID) {
			return nil, fmt.Errorf("unknown category %q", cat.ID)
		}
		if _, ok := c.layouts[cat.Layout]; !ok {
			return nil, fmt.Errorf("category %q uses unknown layout %q", cat.ID, cat.Layout)
		}
		c.categories[cat.ID] = cat
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

func (c *Catalog) Layout(id string) (Layout, bool) {
	l, ok := c.layouts[id]
	return l, ok
}

// Category returns the entry for id; unknown or empty ids fall back to a
// general entry on the default layout.
func (c *Catalog) Category(id string) Category {
	if id == "" {
		id = core.CategoryGeneral
	}
	if cat, ok := c.categories[id]; ok {
		return cat
	}
	return Category{ID: id, Label: core.CategoryLabel(id), Layout: DefaultLayout}
}
