package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

func TestVaccineSurvey(t *testing.T) {
	s := VaccineSurvey()
	require.NoError(t, Validate(s))

	assert.Equal(t, VaccineSurveySlug, s.Name)
	assert.Len(t, s.Fields, 20)
	require.Len(t, s.Metas, 1)
	assert.Equal(t, core.FieldDefinition{Name: "study_code", Kind: core.KindText}, s.Metas[0])
	assert.Equal(t, []string{"location", "immunological_data"}, s.Groups())

	ama1, ok := s.Field("ama1")
	require.True(t, ok)
	assert.Equal(t, core.KindNumeric, ama1.Kind)
	assert.Equal(t, "immunological_data", ama1.Group)

	entry, ok := s.Field("entry_date")
	require.True(t, ok)
	assert.Equal(t, core.KindTemporal, entry.Kind)
	assert.Empty(t, entry.Group)

	// Fresh copy per call.
	s.Fields[0].Name = "changed"
	assert.Equal(t, "sex", VaccineSurvey().Fields[0].Name)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Contains(t, Default().Names(), VaccineSurveySlug)

	s, err := Get(VaccineSurveySlug)
	require.NoError(t, err)
	assert.Equal(t, VaccineSurvey(), s)

	_, err = Get("sample-unknown")
	assert.Error(t, err)
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Names())

	err := r.Register(&core.Schema{Name: "broken"})
	assert.ErrorIs(t, err, ErrInvalidSchema)

	custom := &core.Schema{
		Name:   "sample-custom",
		Fields: []core.FieldDefinition{{Name: "weight", Kind: core.KindNumeric}},
	}
	require.NoError(t, r.Register(custom))

	custom.Fields[0].Name = "mutated"
	got, err := r.Get("sample-custom")
	require.NoError(t, err)
	assert.Equal(t, "weight", got.Fields[0].Name)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		schema *core.Schema
	}{
		{"nil", nil},
		{"empty field name", &core.Schema{Name: "s", Fields: []core.FieldDefinition{{Name: " "}}}},
		{"duplicate field", &core.Schema{Name: "s", Fields: []core.FieldDefinition{
			{Name: "a", Kind: core.KindNumeric},
			{Name: "a", Kind: core.KindText},
		}}},
		{"unknown kind", &core.Schema{Name: "s", Fields: []core.FieldDefinition{{Name: "a", Kind: core.Kind(42)}}}},
		{"non-text meta", &core.Schema{Name: "s", Metas: []core.FieldDefinition{{Name: "id", Kind: core.KindNumeric}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.schema)
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}

	// The same name may appear once as a field and once as a meta.
	ok := &core.Schema{
		Name:   "s",
		Fields: []core.FieldDefinition{{Name: "id", Kind: core.KindCategorical}},
		Metas:  []core.FieldDefinition{{Name: "id", Kind: core.KindText}},
	}
	assert.NoError(t, Validate(ok))
}

func TestValidateNameOnlyRequiredForRegistration(t *testing.T) {
	unnamed := &core.Schema{Fields: []core.FieldDefinition{{Name: "sex", Kind: core.KindCategorical}}}
	assert.NoError(t, Validate(unnamed))
	assert.NoError(t, Validate(&core.Schema{}))

	r := NewRegistry()
	err := r.Register(unnamed)
	require.ErrorIs(t, err, ErrInvalidSchema)
	assert.Contains(t, err.Error(), "name is required")

	err = r.Register(&core.Schema{Name: "empty"})
	require.ErrorIs(t, err, ErrInvalidSchema)
	assert.Contains(t, err.Error(), "no fields")

	_, err = LoadYAML([]byte("fields:\n  - name: sex\n    kind: categorical\n"))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

const customYAML = `
name: sample-custom
fields:
  - name: sex
    kind: categorical
  - name: ama1
    kind: numeric
    group: immunological_data
metas:
  - name: study_code
    kind: text
`

func TestLoadYAML(t *testing.T) {
	s, err := LoadYAML([]byte(customYAML))
	require.NoError(t, err)

	assert.Equal(t, "sample-custom", s.Name)
	assert.Equal(t, []core.FieldDefinition{
		{Name: "sex", Kind: core.KindCategorical},
		{Name: "ama1", Kind: core.KindNumeric, Group: "immunological_data"},
	}, s.Fields)

	_, err = LoadYAML([]byte("name: s\nfields:\n  - name: a\n    kind: colour\n"))
	assert.Error(t, err)
}

func TestLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	data, err := MarshalYAML(VaccineSurvey())
	require.NoError(t, err)
	yamlPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(yamlPath, data, 0o600))

	s, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, VaccineSurvey(), s)

	jsonPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"name": "sample-json",
		"fields": [{"name": "birth_date", "kind": "temporal"}]
	}`), 0o600))

	s, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, core.KindTemporal, s.Fields[0].Kind)

	_, err = LoadFile(filepath.Join(dir, "schema.toml"))
	assert.Error(t, err)
}

func TestMapperToText(t *testing.T) {
	m := NewMapper()

	tests := []struct {
		in   any
		want string
	}{
		{"M", "M"},
		{float64(12), "12"},
		{12.5, "12.5"},
		{42, "42"},
		{true, "true"},
		{time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), "2020-01-05"},
		{[]any{"a", float64(1)}, `["a",1]`},
	}
	for _, tt := range tests {
		got, err := m.ToText(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := m.ToText(map[string]any{"a": 1})
	assert.True(t, errors.Is(err, ErrNestedValue))
}

func TestMapperToCategorical(t *testing.T) {
	m := NewMapper()

	v, err := m.ToCategorical(true)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = m.ToCategorical(float64(3))
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	v, err = m.ToCategorical(map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, v)
}

func TestMapperToTemporal(t *testing.T) {
	m := NewMapper()

	got, ok, err := m.ToTemporal("2020-01-05")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), got)

	_, ok, err = m.ToTemporal("")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.ToTemporal("   ")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []any{"2020-13-40", "05/01/2020", true, map[string]any{}} {
		_, _, err = m.ToTemporal(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, "%v", bad)
	}
}

func TestMapperCoerce(t *testing.T) {
	m := NewMapper()

	v, err := m.Coerce(core.KindNumeric, nil)
	require.NoError(t, err)
	assert.True(t, v.IsMissing())

	v, err = m.Coerce(core.KindNumeric, 12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v.Interface())

	v, err = m.Coerce(core.KindText, "VS-001")
	require.NoError(t, err)
	assert.Equal(t, "VS-001", v.Interface())

	v, err = m.Coerce(core.KindTemporal, "")
	require.NoError(t, err)
	assert.True(t, v.IsMissing())

	_, err = m.Coerce(core.Kind(9), "x")
	assert.Error(t, err)
}
