// Package fixture binds the loader to test lifecycles: a plan names the
// indices to empty and the sources to load once per suite and before
// individual cases.
package fixture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"esdata/features/loader"
)

// Step is one lifecycle point: indices emptied first, then sources loaded
// in order.
type Step struct {
	Delete []string          `yaml:"delete,omitempty"`
	Load   []loader.LoadSpec `yaml:"load,omitempty"`
}

// Plan is the suite-level Step plus per-case Steps keyed by test name.
type Plan struct {
	Step  `yaml:",inline"`
	Cases map[string]Step `yaml:"cases,omitempty"`
}

// DecodePlan reads a YAML plan:
//
//	delete: [Author]
//	load:
//	  - mapping: Book
//	    location: books.json.gz
//	cases:
//	  TestFirstAuthors:
//	    load:
//	      - {mapping: Author, location: authors.json, maxItems: 5, skipItems: 2}
func DecodePlan(r io.Reader) (Plan, error) {
	var p Plan
	if err := yaml.NewDecoder(r).Decode(&p); err != nil && err != io.EOF {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if _, err := p.Step.sources(); err != nil {
		return Plan{}, err
	}
	for name, c := range p.Cases {
		if _, err := c.sources(); err != nil {
			return Plan{}, fmt.Errorf("case %s: %w", name, err)
		}
	}
	return p, nil
}

func LoadPlan(path string) (Plan, error) {
	f, err := os.Open(filepath.Clean(path)) // #nosec G304 -- path comes from configuration
	if err != nil {
		return Plan{}, err
	}
	defer f.Close()

	p, err := DecodePlan(f)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func (s Step) empty() bool {
	return len(s.Delete) == 0 && len(s.Load) == 0
}

func (s Step) sources() ([]loader.DataSource, error) {
	out := make([]loader.DataSource, 0, len(s.Load))
	for i, spec := range s.Load {
		ds, err := loader.FromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("load[%d]: %w", i, err)
		}
		out = append(out, ds)
	}
	return out, nil
}
