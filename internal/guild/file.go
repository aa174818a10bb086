package guild

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry is one guild in a configuration file
type Entry struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Config Config `yaml:"config"`
}

// File is the on-disk format used to seed guild configurations
type File struct {
	Guilds []Entry `yaml:"guilds"`
}

// LoadFile reads and validates a YAML guild configuration file
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read guild file: %w", err)
	}
	return Parse(data)
}

// Parse decodes guild entries from YAML
func Parse(data []byte) ([]Entry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode guild file: %w", err)
	}

	seen := make(map[string]bool, len(f.Guilds))
	for i := range f.Guilds {
		e := &f.Guilds[i]
		if e.ID == "" {
			return nil, fmt.Errorf("guild %d: missing id", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("guild %s: duplicate entry", e.ID)
		}
		seen[e.ID] = true

		if err := e.Config.Validate(); err != nil {
			return nil, fmt.Errorf("guild %s: %w", e.ID, err)
		}
	}

	return f.Guilds, nil
}
