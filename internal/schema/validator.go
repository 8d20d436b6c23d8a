package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

// ErrInvalidSchema is wrapped by every error returned from Validate.
var ErrInvalidSchema = errors.New("invalid schema")

// Validate checks that a schema can be handed to the table builder.
// Field names must be non-empty and unique within their role, every kind
// must be known and meta fields must be text. The name is optional here.
func Validate(s *core.Schema) error {
	if s == nil {
		return fmt.Errorf("%w: schema cannot be nil", ErrInvalidSchema)
	}

	if err := validateFields("field", s.Fields); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchema, label(s), err)
	}
	if err := validateFields("meta", s.Metas); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchema, label(s), err)
	}

	for _, m := range s.Metas {
		if m.Kind != core.KindText {
			return fmt.Errorf("%w: %s: meta %q must be text, got %s", ErrInvalidSchema, label(s), m.Name, m.Kind)
		}
	}

	return nil
}

// validateNamed is Validate for schemas that are registered or loaded from
// files: they are looked up by name and must describe at least one field.
func validateNamed(s *core.Schema) error {
	if err := Validate(s); err != nil {
		return err
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchema)
	}
	if len(s.Fields) == 0 && len(s.Metas) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidSchema, s.Name)
	}
	return nil
}

func label(s *core.Schema) string {
	if s.Name == "" {
		return "unnamed schema"
	}
	return s.Name
}

func validateFields(role string, fields []core.FieldDefinition) error {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%s %d has an empty name", role, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate %s %q", role, f.Name)
		}
		seen[f.Name] = true

		if !f.Kind.Valid() {
			return fmt.Errorf("%s %q has unknown kind %s", role, f.Name, f.Kind)
		}
	}
	return nil
}
