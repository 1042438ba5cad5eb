// Package manifest reads the run input document: the abstractions and
// relationships the external repository scanner extracted. YAML and JSON are
// both accepted (YAML is a superset here).
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"docweave/internal/model"
)

// Manifest is one run's extracted input.
type Manifest struct {
	Title         string               `yaml:"title" json:"title"`
	Abstractions  []model.Abstraction  `yaml:"abstractions" json:"abstractions"`
	Relationships []model.Relationship `yaml:"relationships" json:"relationships"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(raw)
}

// Parse decodes manifest bytes.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if len(m.Abstractions) == 0 {
		return nil, fmt.Errorf("manifest has no abstractions")
	}
	for i, a := range m.Abstractions {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("abstraction %d has an empty id", i)
		}
	}
	return &m, nil
}
