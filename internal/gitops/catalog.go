package gitops

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

//go:embed templates/*.yaml
var templateFiles embed.FS

// Catalog serves the built-in IaC templates from manifests embedded at
// build time. Manifest problems are tree bugs, so they fail construction
// instead of serving a partial catalog.
type Catalog struct {
	templates []schema.IaCTemplate
	byID      map[schema.TemplateID]templateManifest
}

var _ core.TemplateCatalog = (*Catalog)(nil)

type templateManifest struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Kind        string              `yaml:"kind"`
	Provider    string              `yaml:"provider"`
	Description string              `yaml:"description"`
	Version     string              `yaml:"version"`
	Parameters  []manifestParameter `yaml:"parameters"`
	Files       map[string]string   `yaml:"files"`
}

type manifestParameter struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Default     string `yaml:"default"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// NewCatalog parses the embedded manifests in file name order.
func NewCatalog() (*Catalog, error) {
	entries, err := fs.ReadDir(templateFiles, "templates")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	c := &Catalog{byID: make(map[schema.TemplateID]templateManifest, len(names))}
	for _, name := range names {
		data, err := templateFiles.ReadFile(path.Join("templates", name))
		if err != nil {
			return nil, err
		}
		var m templateManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse template manifest %s: %w", name, err)
		}
		entry, err := m.entry()
		if err != nil {
			return nil, fmt.Errorf("template manifest %s: %w", name, err)
		}
		if _, dup := c.byID[entry.ID]; dup {
			return nil, fmt.Errorf("template manifest %s: duplicate id %s", name, entry.ID)
		}
		c.templates = append(c.templates, entry)
		c.byID[entry.ID] = m
	}
	if len(c.templates) == 0 {
		return nil, fmt.Errorf("no template manifests embedded")
	}
	return c, nil
}

func (m templateManifest) entry() (schema.IaCTemplate, error) {
	if strings.TrimSpace(m.ID) == "" {
		return schema.IaCTemplate{}, fmt.Errorf("missing id")
	}
	var kind schema.TemplateKind
	switch schema.TemplateKind(m.Kind) {
	case schema.TemplateTerraform, schema.TemplatePulumi, schema.TemplateCloudFormation:
		kind = schema.TemplateKind(m.Kind)
	default:
		return schema.IaCTemplate{}, fmt.Errorf("unknown kind %q", m.Kind)
	}
	provider, err := schema.NormalizeCloudProvider(m.Provider)
	if err != nil {
		return schema.IaCTemplate{}, err
	}
	if strings.TrimSpace(m.Version) == "" {
		return schema.IaCTemplate{}, fmt.Errorf("missing version")
	}
	if len(m.Files) == 0 {
		return schema.IaCTemplate{}, fmt.Errorf("no files")
	}
	seen := make(map[string]struct{}, len(m.Parameters))
	params := make([]schema.TemplateParameter, 0, len(m.Parameters))
	for _, p := range m.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return schema.IaCTemplate{}, fmt.Errorf("parameter with empty name")
		}
		if _, dup := seen[p.Name]; dup {
			return schema.IaCTemplate{}, fmt.Errorf("duplicate parameter %s", p.Name)
		}
		seen[p.Name] = struct{}{}
		params = append(params, schema.TemplateParameter{
			Name:        p.Name,
			Type:        p.Type,
			Default:     p.Default,
			Required:    p.Required,
			Description: p.Description,
		})
	}
	return schema.IaCTemplate{
		ID:          schema.TemplateID(m.ID),
		Name:        m.Name,
		Kind:        kind,
		Provider:    provider,
		Description: m.Description,
		Version:     m.Version,
		Parameters:  params,
	}, nil
}

// List returns templates narrowed by kind and cloud provider. Empty
// arguments match everything.
func (c *Catalog) List(kind schema.TemplateKind, provider schema.CloudProvider) []schema.IaCTemplate {
	out := make([]schema.IaCTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		if kind != "" && t.Kind != kind {
			continue
		}
		if provider != "" && t.Provider != provider {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Get returns the template with its parameter schema.
func (c *Catalog) Get(id schema.TemplateID) (schema.IaCTemplate, error) {
	for _, t := range c.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return schema.IaCTemplate{}, schema.ErrTemplateNotFound
}

// Render materializes the template files with parameters applied. Defaults
// fill optional parameters; a required parameter left empty fails with
// schema.ErrMissingParameter.
func (c *Catalog) Render(id schema.TemplateID, params map[string]string) (map[string]string, error) {
	entry, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	m := c.byID[id]

	values := make(map[string]string, len(entry.Parameters))
	for _, p := range entry.Parameters {
		values[p.Name] = p.Default
	}
	for name, value := range params {
		if _, known := values[name]; known {
			values[name] = strings.TrimSpace(value)
		}
	}
	for _, p := range entry.Parameters {
		if p.Required && values[p.Name] == "" {
			return nil, fmt.Errorf("%w: %s", schema.ErrMissingParameter, p.Name)
		}
	}

	out := make(map[string]string, len(m.Files))
	for name, body := range m.Files {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("template %s file %s: %w", id, name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, values); err != nil {
			return nil, fmt.Errorf("template %s file %s: %w", id, name, err)
		}
		out[name] = buf.String()
	}
	return out, nil
}
