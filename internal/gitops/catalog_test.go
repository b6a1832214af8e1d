package gitops

import (
	"errors"
	"strings"
	"testing"

	"github.com/inframind/inframind/schema"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return catalog
}

func TestCatalogListsBuiltins(t *testing.T) {
	catalog := newTestCatalog(t)
	all := catalog.List("", "")
	want := map[schema.TemplateID]schema.TemplateKind{
		"terraform/aws-landing-zone": schema.TemplateTerraform,
		"terraform/gcp-foundation":   schema.TemplateTerraform,
		"terraform/azure-baseline":   schema.TemplateTerraform,
		"pulumi/aws-serverless":      schema.TemplatePulumi,
		"cloudformation/aws-vpc":     schema.TemplateCloudFormation,
	}
	if len(all) != len(want) {
		t.Fatalf("List returned %d templates, want %d", len(all), len(want))
	}
	for _, tmpl := range all {
		kind, ok := want[tmpl.ID]
		if !ok {
			t.Errorf("unexpected template %s", tmpl.ID)
			continue
		}
		if tmpl.Kind != kind {
			t.Errorf("template %s kind = %s, want %s", tmpl.ID, tmpl.Kind, kind)
		}
		if tmpl.Version == "" {
			t.Errorf("template %s has no version", tmpl.ID)
		}
	}
}

func TestCatalogListFilters(t *testing.T) {
	catalog := newTestCatalog(t)
	terraform := catalog.List(schema.TemplateTerraform, "")
	if len(terraform) != 3 {
		t.Errorf("terraform templates = %d, want 3", len(terraform))
	}
	aws := catalog.List("", schema.CloudAWS)
	if len(aws) != 3 {
		t.Errorf("aws templates = %d, want 3", len(aws))
	}
	azureTerraform := catalog.List(schema.TemplateTerraform, schema.CloudAzure)
	if len(azureTerraform) != 1 || azureTerraform[0].ID != "terraform/azure-baseline" {
		t.Errorf("azure terraform = %+v, want just terraform/azure-baseline", azureTerraform)
	}
}

func TestCatalogGetUnknown(t *testing.T) {
	catalog := newTestCatalog(t)
	if _, err := catalog.Get("terraform/nope"); !errors.Is(err, schema.ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestCatalogRenderSubstitutes(t *testing.T) {
	catalog := newTestCatalog(t)
	files, err := catalog.Render("terraform/aws-landing-zone", map[string]string{
		"org_name":    "acme",
		"audit_email": "audit@acme.com",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	main, ok := files["main.tf"]
	if !ok {
		t.Fatalf("rendered files missing main.tf, got %v", keys(files))
	}
	if !strings.Contains(main, `org_name    = "acme"`) {
		t.Errorf("main.tf did not substitute org_name:\n%s", main)
	}
	// region falls back to its default.
	if !strings.Contains(main, `region = "us-east-1"`) {
		t.Errorf("main.tf did not apply region default:\n%s", main)
	}
	for name, body := range files {
		if strings.Contains(body, "{{") {
			t.Errorf("%s still contains template markers:\n%s", name, body)
		}
	}
}

func TestCatalogRenderMissingRequired(t *testing.T) {
	catalog := newTestCatalog(t)
	_, err := catalog.Render("terraform/aws-landing-zone", map[string]string{
		"org_name":    "acme",
		"audit_email": "   ",
	})
	if !errors.Is(err, schema.ErrMissingParameter) {
		t.Fatalf("err = %v, want ErrMissingParameter", err)
	}
	if !strings.Contains(err.Error(), "audit_email") {
		t.Errorf("err = %v, want it to name audit_email", err)
	}
}

func TestCatalogRenderAllBuiltins(t *testing.T) {
	catalog := newTestCatalog(t)
	params := map[schema.TemplateID]map[string]string{
		"terraform/aws-landing-zone": {"org_name": "acme", "audit_email": "audit@acme.com"},
		"terraform/gcp-foundation":   {"project_id": "acme-shared", "billing_account": "01AB-23CD-45EF"},
		"terraform/azure-baseline":   {"prefix": "acme"},
		"pulumi/aws-serverless":      {"service_name": "orders"},
		"cloudformation/aws-vpc":     {"stack_name": "core-vpc"},
	}
	for _, tmpl := range catalog.List("", "") {
		files, err := catalog.Render(tmpl.ID, params[tmpl.ID])
		if err != nil {
			t.Errorf("render %s: %v", tmpl.ID, err)
			continue
		}
		if len(files) == 0 {
			t.Errorf("render %s produced no files", tmpl.ID)
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
