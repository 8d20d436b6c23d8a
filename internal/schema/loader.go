package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

// LoadFile reads a schema definition from a YAML or JSON file, chosen by extension.
func LoadFile(path string) (*core.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".json":
		return LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported schema file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadYAML parses and validates a YAML schema definition.
func LoadYAML(data []byte) (*core.Schema, error) {
	var s core.Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML schema: %w", err)
	}
	if err := validateNamed(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadJSON parses and validates a JSON schema definition.
func LoadJSON(data []byte) (*core.Schema, error) {
	var s core.Schema
	if err := gojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse JSON schema: %w", err)
	}
	if err := validateNamed(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarshalYAML renders a schema in the format LoadYAML accepts.
func MarshalYAML(s *core.Schema) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return data, nil
}
