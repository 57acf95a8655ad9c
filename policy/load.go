package policy

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	policyFile struct {
		Policies []policyYAML `yaml:"policies"`
	}

	policyYAML struct {
		Name     string    `yaml:"name"`
		Inherits []string  `yaml:"inherits"`
		Guard    guardYAML `yaml:"guard"`
	}

	guardYAML struct {
		MaxAllocations    *int64   `yaml:"max_allocations"`
		MaxDurationSecs   *float64 `yaml:"max_duration_secs"`
		MaxMemory         *int64   `yaml:"max_memory"`
		GCInterval        *int64   `yaml:"gc_interval"`
		MaxRecursionDepth *int     `yaml:"max_recursion_depth"`
	}
)

// LoadPolicies parses named policies from a YAML document of the form:
//
//	policies:
//	  - name: batch
//	    inherits: [strict]
//	    guard:
//	      max_duration_secs: 2.5
//	      max_memory: 1048576
//
// The returned registry contains the presets plus the loaded policies.
// Loaded policies may redefine presets. Guards are validated and inheritance
// targets must resolve within the returned registry.
func LoadPolicies(r io.Reader) (map[string]Policy, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read policies: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policies: %w", err)
	}
	reg := Named()
	for _, py := range file.Policies {
		if py.Name == "" {
			return nil, validationErrorf("policy with empty name")
		}
		p := Policy{Name: py.Name, Inherits: py.Inherits, Guard: py.Guard.guard()}
		if err := p.Guard.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.Name, err)
		}
		reg[p.Name] = p
	}
	// Expansion validates inheritance targets and rejects cycles.
	for name := range reg {
		if _, err := expand(reg, Name(name), nil); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (g guardYAML) guard() Guard {
	out := Guard{
		MaxAllocations:    g.MaxAllocations,
		MaxMemory:         g.MaxMemory,
		GCInterval:        g.GCInterval,
		MaxRecursionDepth: g.MaxRecursionDepth,
	}
	if g.MaxDurationSecs != nil {
		out.MaxDuration = ptr(time.Duration(*g.MaxDurationSecs * float64(time.Second)))
	}
	return out
}
