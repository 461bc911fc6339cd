package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Registry maps product names from the source workbooks to tracker
// project keys. Products without a mapping are skipped with a warning
// rather than failing the run.
type Registry struct {
	projects map[string]string
}

// Load reads the product registry from the configured JSON file. The
// file holds a flat object of product name to project key.
func Load(cfg Config) (*Registry, error) {
	raw, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", cfg.Path, err)
	}

	var mapping map[string]string
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", cfg.Path, err)
	}

	reg := &Registry{projects: make(map[string]string, len(mapping))}
	for product, project := range mapping {
		product = strings.TrimSpace(product)
		project = strings.TrimSpace(project)
		if product == "" || project == "" {
			continue
		}
		reg.projects[strings.ToLower(product)] = project
	}
	return reg, nil
}

// FromMap builds a registry from an in-memory mapping.
func FromMap(mapping map[string]string) *Registry {
	reg := &Registry{projects: make(map[string]string, len(mapping))}
	for product, project := range mapping {
		reg.projects[strings.ToLower(strings.TrimSpace(product))] = project
	}
	return reg
}

// Lookup resolves a product name to its project key. Matching is
// case-insensitive.
func (r *Registry) Lookup(product string) (string, bool) {
	project, ok := r.projects[strings.ToLower(strings.TrimSpace(product))]
	return project, ok
}

// Products returns the registered product names, sorted.
func (r *Registry) Products() []string {
	out := make([]string, 0, len(r.projects))
	for product := range r.projects {
		out = append(out, product)
	}
	sort.Strings(out)
	return out
}
