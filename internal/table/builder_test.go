package table

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/schema"
)

func sample(studyCode, sex string, extra map[string]any) core.RawRecord {
	r := core.RawRecord{"study_code": studyCode, "sex": sex}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func values(vs ...any) []core.Value {
	out := make([]core.Value, len(vs))
	for i, v := range vs {
		out[i] = core.NewValue(v)
	}
	return out
}

func column(t *testing.T, tbl *core.Table, name string) []core.Value {
	t.Helper()
	out := make([]core.Value, tbl.Len())
	for i := range out {
		v, ok := tbl.Value(i, name)
		require.True(t, ok, "column %q", name)
		out[i] = v
	}
	return out
}

func TestBuildSexScenario(t *testing.T) {
	records := []core.RawRecord{
		sample("VS-001", "M", nil),
		sample("VS-002", "F", nil),
		sample("VS-003", "M", nil),
	}

	tbl, err := Build(records, schema.VaccineSurvey())
	require.NoError(t, err)

	assert.Equal(t, schema.VaccineSurveySlug, tbl.Name())
	require.Equal(t, 3, tbl.Len())
	assert.Len(t, tbl.Columns(), 20)
	assert.Len(t, tbl.Metas(), 1)

	if diff := cmp.Diff(values("M", "F", "M"), column(t, tbl, "sex")); diff != "" {
		t.Errorf("sex column mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(values("VS-001", "VS-002", "VS-003"), column(t, tbl, "study_code")); diff != "" {
		t.Errorf("study_code column mismatch (-want +got):\n%s", diff)
	}

	sex, ok := tbl.Column("sex")
	require.True(t, ok)
	if diff := cmp.Diff(values("F", "M"), sex.Domain); diff != "" {
		t.Errorf("sex domain mismatch (-want +got):\n%s", diff)
	}

	// Every other field is missing.
	for _, name := range []string{"entry_date", "latitude", "ama1", "fever", "body_temp"} {
		for i, v := range column(t, tbl, name) {
			assert.True(t, v.IsMissing(), "row %d field %s", i, name)
		}
	}
}

func TestBuildMissingFieldDoesNotCarryOver(t *testing.T) {
	records := []core.RawRecord{
		sample("A", "M", map[string]any{"fever": "yes", "body_temp": 38.5}),
		sample("B", "F", nil),
	}

	tbl, err := Build(records, schema.VaccineSurvey())
	require.NoError(t, err)

	fever, _ := tbl.Value(1, "fever")
	assert.True(t, fever.IsMissing())
	temp, _ := tbl.Value(1, "body_temp")
	assert.True(t, temp.IsMissing())

	temp, _ = tbl.Value(0, "body_temp")
	assert.Equal(t, 38.5, temp.Interface())
}

func TestBuildGroups(t *testing.T) {
	records := []core.RawRecord{
		sample("A", "M", map[string]any{
			"immunological_data": map[string]any{"ama1": 12.5, "msp1": 0.0},
			"location":           map[string]any{"latitude": 5.1, "longitude": -1.2},
		}),
		sample("B", "F", nil),
		sample("C", "F", map[string]any{"immunological_data": nil}),
		sample("D", "M", map[string]any{"location": "unknown"}),
	}

	tbl, err := Build(records, schema.VaccineSurvey())
	require.NoError(t, err)

	ama1, _ := tbl.Value(0, "ama1")
	assert.Equal(t, 12.5, ama1.Interface())
	msp1, _ := tbl.Value(0, "msp1")
	assert.False(t, msp1.IsMissing(), "0 is a valid value")
	nanp, _ := tbl.Value(0, "nanp")
	assert.True(t, nanp.IsMissing())
	lat, _ := tbl.Value(0, "latitude")
	assert.Equal(t, 5.1, lat.Interface())

	for row := 1; row <= 3; row++ {
		for _, name := range []string{"ama1", "msp1", "msp2", "nanp", "total_ige", "latitude", "longitude"} {
			v, _ := tbl.Value(row, name)
			assert.True(t, v.IsMissing(), "row %d field %s", row, name)
		}
	}

	diags := tbl.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, core.DiagUnexpectedGroupValue, diags[0].Code)
	assert.Equal(t, 3, diags[0].Row)
	assert.Equal(t, "location", diags[0].Field)
}

func TestBuildTemporal(t *testing.T) {
	records := []core.RawRecord{
		sample("A", "M", map[string]any{"entry_date": "2020-01-05", "birth_date": ""}),
	}

	tbl, err := Build(records, schema.VaccineSurvey())
	require.NoError(t, err)

	entry, _ := tbl.Value(0, "entry_date")
	assert.Equal(t, time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), entry.Interface())
	birth, _ := tbl.Value(0, "birth_date")
	assert.True(t, birth.IsMissing())
}

func TestBuildMalformedTemporalAborts(t *testing.T) {
	records := []core.RawRecord{
		sample("A", "M", map[string]any{"entry_date": "2020-01-05"}),
		sample("B", "F", map[string]any{"birth_date": "2020-13-40"}),
	}

	tbl, err := Build(records, schema.VaccineSurvey())
	assert.Nil(t, tbl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedTemporalValue))

	var malformed *MalformedTemporalValueError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 1, malformed.Row)
	assert.Equal(t, "birth_date", malformed.Field)
	assert.Equal(t, "2020-13-40", malformed.Value)
	assert.Contains(t, err.Error(), "birth_date")
}

func TestBuildCategoricalDomain(t *testing.T) {
	records := []core.RawRecord{
		sample("A", "M", map[string]any{"bednet": true, "village_code": float64(12), "cough": "no"}),
		sample("B", "F", map[string]any{"bednet": false, "village_code": "7", "cough": "yes"}),
		sample("C", "M", map[string]any{"bednet": true, "village_code": float64(12)}),
	}

	tbl, err := Build(records, schema.VaccineSurvey())
	require.NoError(t, err)

	bednet, _ := tbl.Column("bednet")
	if diff := cmp.Diff(values(false, true), bednet.Domain); diff != "" {
		t.Errorf("bednet domain mismatch (-want +got):\n%s", diff)
	}
	first, _ := tbl.Value(0, "bednet")
	assert.Equal(t, true, first.Interface())

	village, _ := tbl.Column("village_code")
	if diff := cmp.Diff(values("12", "7"), village.Domain); diff != "" {
		t.Errorf("village_code domain mismatch (-want +got):\n%s", diff)
	}

	// Missing cells never enter the domain.
	cough, _ := tbl.Column("cough")
	if diff := cmp.Diff(values("no", "yes"), cough.Domain); diff != "" {
		t.Errorf("cough domain mismatch (-want +got):\n%s", diff)
	}

	// Every present categorical value is a member of its column domain.
	for _, col := range tbl.Columns() {
		if col.Kind != core.KindCategorical {
			continue
		}
		for i, v := range column(t, tbl, col.Name) {
			if v.IsMissing() {
				continue
			}
			_, ok := col.DomainIndex(v)
			assert.True(t, ok, "row %d value %v not in %s domain", i, v, col.Name)
		}
	}
}

func TestBuildNestedMetaValue(t *testing.T) {
	records := []core.RawRecord{
		{"study_code": map[string]any{"id": 1}, "sex": "M"},
	}

	tbl, err := Build(records, schema.VaccineSurvey())
	require.NoError(t, err)

	code, _ := tbl.Value(0, "study_code")
	assert.True(t, code.IsMissing())

	diags := tbl.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, core.DiagUnexpectedNestedValue, diags[0].Code)
	assert.Equal(t, "study_code", diags[0].Field)
}

func TestBuildEmpty(t *testing.T) {
	tbl, err := Build(nil, schema.VaccineSurvey())
	require.NoError(t, err)

	assert.Equal(t, 0, tbl.Len())
	assert.Len(t, tbl.Columns(), 20)
	for _, col := range tbl.Columns() {
		assert.Empty(t, col.Domain, col.Name)
	}
}

func TestBuildInvalidSchema(t *testing.T) {
	_, err := Build(nil, &core.Schema{Fields: []core.FieldDefinition{
		{Name: "sex", Kind: core.KindCategorical},
		{Name: "sex", Kind: core.KindText},
	}})
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)
}

func TestBuildUnnamedSchema(t *testing.T) {
	s := &core.Schema{Fields: []core.FieldDefinition{{Name: "sex", Kind: core.KindCategorical}}}
	records := []core.RawRecord{{"sex": "M"}, {"sex": "F"}, {"sex": "M"}}

	tbl, err := Build(records, s)
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Empty(t, tbl.Metas())
	sex, ok := tbl.Column("sex")
	require.True(t, ok)
	if diff := cmp.Diff(values("F", "M"), sex.Domain); diff != "" {
		t.Errorf("sex domain mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildMixedBoolAndStringCategories(t *testing.T) {
	s := &core.Schema{Fields: []core.FieldDefinition{{Name: "bednet", Kind: core.KindCategorical}}}
	records := []core.RawRecord{{"bednet": true}, {"bednet": "true"}, {"bednet": true}}

	tbl, err := Build(records, s)
	require.NoError(t, err)

	// Native booleans are kept apart from their string spelling.
	bednet, _ := tbl.Column("bednet")
	if diff := cmp.Diff(values(true, "true"), bednet.Domain); diff != "" {
		t.Errorf("bednet domain mismatch (-want +got):\n%s", diff)
	}
	assert.IsType(t, true, bednet.Domain[0].Interface())
	assert.IsType(t, "", bednet.Domain[1].Interface())

	first, _ := tbl.Value(0, "bednet")
	second, _ := tbl.Value(1, "bednet")
	i, ok := bednet.DomainIndex(first)
	require.True(t, ok)
	assert.Equal(t, 0, i)
	i, ok = bednet.DomainIndex(second)
	require.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestBuildListValueAsText(t *testing.T) {
	s := &core.Schema{
		Fields: []core.FieldDefinition{{Name: "symptoms", Kind: core.KindCategorical}},
		Metas:  []core.FieldDefinition{{Name: "study_code", Kind: core.KindText}},
	}
	records := []core.RawRecord{{"symptoms": []any{"fever", "cough"}, "study_code": []any{"A", "B"}}}

	tbl, err := Build(records, s)
	require.NoError(t, err)

	symptoms, _ := tbl.Value(0, "symptoms")
	assert.Equal(t, `["fever","cough"]`, symptoms.String())
	code, _ := tbl.Value(0, "study_code")
	assert.Equal(t, `["A","B"]`, code.String())
	assert.Empty(t, tbl.Diagnostics())
}

func TestBuilderReuse(t *testing.T) {
	b, err := NewBuilder(schema.VaccineSurvey(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	first, err := b.Build([]core.RawRecord{sample("A", "M", nil)})
	require.NoError(t, err)
	second, err := b.Build([]core.RawRecord{sample("B", "F", nil), sample("C", "F", nil)})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 2, second.Len())

	sex, _ := first.Column("sex")
	if diff := cmp.Diff(values("M"), sex.Domain); diff != "" {
		t.Errorf("first build domain changed (-want +got):\n%s", diff)
	}
}

func TestTableIsImmutable(t *testing.T) {
	tbl, err := Build([]core.RawRecord{sample("A", "M", nil)}, schema.VaccineSurvey())
	require.NoError(t, err)

	row := tbl.Row(0)
	row[0] = core.NewValue("X")
	cols := tbl.Columns()
	cols[0].Domain[0] = core.NewValue("X")

	sex, _ := tbl.Value(0, "sex")
	assert.Equal(t, "M", sex.Interface())
	col, _ := tbl.Column("sex")
	assert.Equal(t, "M", col.Domain[0].Interface())
}
