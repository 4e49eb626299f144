// Package targets resolves declarative target descriptors against a
// directory tree. A descriptor names an artifact a sequencing run is
// expected to produce; resolution finds the concrete paths backing it.
package targets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PathType says whether a target's pattern should match a file or a
// folder subtree root.
type PathType string

const (
	PathFile   PathType = "file"
	PathFolder PathType = "folder"
)

// ExpectedPath is the match rule of a descriptor.
type ExpectedPath struct {
	Type    PathType `yaml:"type"`
	Pattern string   `yaml:"pattern"`
}

// Descriptor is one declarative target node. Loaded once per aggregation
// run; immutable thereafter.
type Descriptor struct {
	Name         string       `yaml:"name"`
	ExpectedPath ExpectedPath `yaml:"expected_path"`
	// Recursive controls whether a folder copy includes the whole
	// matched subtree or only its direct children.
	Recursive  bool                   `yaml:"recursive"`
	Exclusions []string               `yaml:"exclusions"`
	Subfolders map[string]*Descriptor `yaml:"subfolders"`
}

func (d *Descriptor) validate(key string) error {
	if d.Name == "" {
		d.Name = key
	}
	switch d.ExpectedPath.Type {
	case PathFile, PathFolder:
	default:
		return fmt.Errorf("target %s: expected_path.type must be file or folder, got %q", d.Name, d.ExpectedPath.Type)
	}
	if d.ExpectedPath.Pattern == "" {
		return fmt.Errorf("target %s: expected_path.pattern is required", d.Name)
	}
	for sub, sd := range d.Subfolders {
		if err := sd.validate(sub); err != nil {
			return err
		}
	}
	return nil
}

// LoadDescriptors reads the target descriptor tree from a YAML file,
// preserving declaration order. Unknown keys are ignored.
func LoadDescriptors(path string) ([]*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading target descriptors: %w", err)
	}
	return ParseDescriptors(data)
}

// ParseDescriptors builds descriptors from raw YAML bytes.
func ParseDescriptors(data []byte) ([]*Descriptor, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing target descriptors: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("target descriptor file must be a mapping of target names")
	}

	var out []*Descriptor
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		var d Descriptor
		if err := doc.Content[i+1].Decode(&d); err != nil {
			return nil, fmt.Errorf("target %s: %w", key, err)
		}
		if err := d.validate(key); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}
