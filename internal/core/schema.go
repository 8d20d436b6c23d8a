package core

import (
	"fmt"
	"strings"
)

// Kind is the semantic type of a schema field. It decides both how a raw
// value is coerced and which column type it becomes.
type Kind int

const (
	// KindCategorical values are discrete; the column domain is derived from the data.
	KindCategorical Kind = iota

	// KindNumeric values are passed through unchanged.
	KindNumeric

	// KindTemporal values are dates in YYYY-MM-DD form.
	KindTemporal

	// KindText values are free text, used for identifier/meta columns.
	KindText
)

var kindNames = map[Kind]string{
	KindCategorical: "categorical",
	KindNumeric:     "numeric",
	KindTemporal:    "temporal",
	KindText:        "text",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind parses the textual form of a kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown field kind %q", s)
}

// MarshalText implements encoding.TextMarshaler so kinds read naturally in YAML and JSON.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid field kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// FieldDefinition describes one attribute extracted from a raw record.
type FieldDefinition struct {
	// Name is the key of the attribute in the record (or in its group).
	Name string `yaml:"name" json:"name"`

	// Kind decides the coercion rule and the resulting column type.
	Kind Kind `yaml:"kind" json:"kind"`

	// Group names the sub-object the attribute is nested under.
	// Empty means the attribute lives at the top level of the record.
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
}

// Schema is an ordered set of field definitions split into data fields,
// which become typed analysis columns, and meta fields, which are carried
// along as row identifiers.
type Schema struct {
	// Name identifies the schema, e.g. the descriptor schema slug on the server.
	Name string `yaml:"name" json:"name"`

	// Fields are the data fields, in column order.
	Fields []FieldDefinition `yaml:"fields" json:"fields"`

	// Metas are the identifier fields, in column order. Always text.
	Metas []FieldDefinition `yaml:"metas,omitempty" json:"metas,omitempty"`
}

// Field returns the data field with the given name.
func (s *Schema) Field(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Groups returns the distinct group names used by data fields, in first-use order.
func (s *Schema) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, f := range s.Fields {
		if f.Group == "" || seen[f.Group] {
			continue
		}
		seen[f.Group] = true
		groups = append(groups, f.Group)
	}
	return groups
}
