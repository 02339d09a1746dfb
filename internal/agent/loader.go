package agent

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// agentsFile is the YAML document shape for an agent definition file.
type agentsFile struct {
	Agents []*Agent `yaml:"agents"`
}

// LoadFile reads agent definitions from the YAML file at path and returns a
// populated [Registry].
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("agent: open %q: %w", path, err)
	}
	defer f.Close()

	reg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("agent: parse %q: %w", path, err)
	}
	return reg, nil
}

// LoadFromReader decodes agent definitions from r. Useful in tests where
// definitions are constructed from string literals.
func LoadFromReader(r io.Reader) (*Registry, error) {
	var doc agentsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("agent: decode yaml: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("agent: no agents defined")
	}
	return NewRegistry(doc.Agents)
}
