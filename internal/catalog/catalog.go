// Package catalog loads the template catalog and renders structured content
// into HTML. Descriptors are read once at startup and immutable afterwards.
package catalog

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/blogify-ai/blogify/models"
)

// Descriptor describes one content template.
type Descriptor struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"` // how_to, listicle, news, review, opinion
	Purpose        string   `json:"purpose"`
	ExampleTopics  []string `json:"example_topics"`
	RequiredFields []string `json:"required_fields"`
	File           string   `json:"file"`
}

type catalogFile struct {
	Default   string       `json:"default"`
	Templates []Descriptor `json:"templates"`
}

// Catalog is the loaded set of descriptors plus their parsed templates.
type Catalog struct {
	defaultID   string
	descriptors []Descriptor
	byID        map[string]Descriptor
	templates   *template.Template
}

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// Load reads the catalog descriptor file and parses the referenced HTML
// templates from dir.
func Load(catalogPath, dir string) (*Catalog, error) {
	raw, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cf catalogFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(cf.Templates) == 0 {
		return nil, fmt.Errorf("catalog %s lists no templates", catalogPath)
	}

	c := &Catalog{
		defaultID:   cf.Default,
		descriptors: cf.Templates,
		byID:        make(map[string]Descriptor, len(cf.Templates)),
	}
	var files []string
	for _, d := range cf.Templates {
		if d.ID == "" || d.File == "" {
			return nil, fmt.Errorf("catalog entry %q missing id or file", d.Name)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", d.ID)
		}
		c.byID[d.ID] = d
		files = append(files, filepath.Join(dir, d.File))
	}
	if c.defaultID == "" {
		c.defaultID = cf.Templates[0].ID
	}
	if _, ok := c.byID[c.defaultID]; !ok {
		return nil, fmt.Errorf("default template %q not in catalog", c.defaultID)
	}

	tmpl, err := template.New("catalog").Funcs(funcs).ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	c.templates = tmpl
	return c, nil
}

// Has reports whether the template id exists.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the descriptor for id.
func (c *Catalog) Get(id string) (Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Default returns the fallback descriptor used when the provider names an
// unknown template.
func (c *Catalog) Default() Descriptor {
	return c.byID[c.defaultID]
}

// Resolve returns the descriptor for id, falling back to the default when
// the id is unknown. The second result reports whether a fallback happened.
func (c *Catalog) Resolve(id string) (Descriptor, bool) {
	if d, ok := c.byID[id]; ok {
		return d, false
	}
	return c.Default(), true
}

// Descriptors returns all descriptors in catalog order.
func (c *Catalog) Descriptors() []Descriptor {
	return c.descriptors
}

// Descriptions renders the catalog as prompt context for the provider.
func (c *Catalog) Descriptions() string {
	var sb strings.Builder
	for _, d := range c.descriptors {
		fmt.Fprintf(&sb, "- %s (%s): %s", d.ID, d.Name, d.Purpose)
		if len(d.ExampleTopics) > 0 {
			fmt.Fprintf(&sb, " Example topics: %s.", strings.Join(d.ExampleTopics, "; "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Validate returns the required fields the content is missing for the
// template.
func (c *Catalog) Validate(id string, content models.Content) ([]string, error) {
	d, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown template id %q", id)
	}
	return content.MissingFields(d.RequiredFields), nil
}

// Render fills the template with the content. Rendering is deterministic:
// the same content and template id always yield identical markup. Unknown
// template ids are an error; callers fall back via Resolve before rendering.
func (c *Catalog) Render(id string, content models.Content) (string, error) {
	d, ok := c.byID[id]
	if !ok {
		return "", fmt.Errorf("unknown template id %q", id)
	}
	var sb strings.Builder
	if err := c.templates.ExecuteTemplate(&sb, filepath.Base(d.File), content); err != nil {
		return "", fmt.Errorf("render %s: %w", id, err)
	}
	return sb.String(), nil
}
