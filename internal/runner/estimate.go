package runner

import (
	"hash/fnv"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/inframind/inframind/schema"
)

// Deterministic pricing inputs, in cents per month.
const (
	unitRateCents   = 14900
	rateSpreadCents = 9000
)

// changeUnits lists the infrastructure units a rendered workspace
// declares: terraform resource and module blocks, and keys under the
// Resources section of CloudFormation and Pulumi manifests. Workspaces
// without recognizable units fall back to one unit per non-doc file.
func changeUnits(files map[string]string) []string {
	var units []string
	for _, name := range sortedFileNames(files) {
		content := files[name]
		switch {
		case strings.HasSuffix(name, ".tf"):
			units = append(units, terraformUnits(content)...)
		case strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml"):
			units = append(units, manifestUnits(content)...)
		}
	}
	if len(units) > 0 {
		return units
	}
	for _, name := range sortedFileNames(files) {
		if strings.HasSuffix(name, ".md") {
			continue
		}
		base := path.Base(name)
		units = append(units, strings.TrimSuffix(base, path.Ext(base)))
	}
	return units
}

func terraformUnits(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[0] == "resource" {
			typ := strings.Trim(fields[1], `"`)
			name := strings.Trim(fields[2], `"{`)
			out = append(out, typ+"."+name)
			continue
		}
		if len(fields) >= 2 && fields[0] == "module" {
			out = append(out, "module."+strings.Trim(fields[1], `"{`))
		}
	}
	return out
}

// manifestUnits collects the top-level keys of a Resources (or resources)
// mapping, which names the logical resources in CloudFormation templates
// and Pulumi programs alike.
func manifestUnits(content string) []string {
	var out []string
	in := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "Resources:" || trimmed == "resources:" {
			in = true
			continue
		}
		if !in {
			continue
		}
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") {
			in = false
			continue
		}
		if strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   ") && strings.HasSuffix(trimmed, ":") {
			out = append(out, strings.TrimSuffix(strings.TrimSpace(trimmed), ":"))
		}
	}
	return out
}

// estimateMonthlyCost prices a change set deterministically: a flat rate
// per unit plus a spread derived from the template and its parameters, so
// repeated runs of the same plan report the same number.
func estimateMonthlyCost(plan schema.DeploymentPlan, units int) float64 {
	h := fnv.New64a()
	_, _ = io.WriteString(h, string(plan.TemplateID))
	keys := make([]string, 0, len(plan.Parameters))
	for k := range plan.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = io.WriteString(h, "\x00"+k+"="+plan.Parameters[k])
	}
	cents := int64(unitRateCents)*int64(units) + int64(h.Sum64()%rateSpreadCents)
	return float64(cents) / 100
}

func sortedFileNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
