package table

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/schema"
)

// Builder converts raw records into typed tables for one schema.
// A Builder holds no per-build state and may be reused concurrently.
type Builder struct {
	schema *core.Schema
	mapper *schema.Mapper
	logger *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used to report diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder validates the schema and returns a builder for it.
func NewBuilder(s *core.Schema, opts ...Option) (*Builder, error) {
	if err := schema.Validate(s); err != nil {
		return nil, err
	}
	b := &Builder{
		schema: s,
		mapper: schema.NewMapper(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build converts records into a table using the given schema.
func Build(records []core.RawRecord, s *core.Schema) (*core.Table, error) {
	b, err := NewBuilder(s)
	if err != nil {
		return nil, err
	}
	return b.Build(records)
}

// Build converts records into a table. Row i of the result corresponds to
// records[i]. A malformed date aborts the whole build and no table is returned.
func (b *Builder) Build(records []core.RawRecord) (*core.Table, error) {
	columns := columnsFor(b.schema.Fields)
	metas := columnsFor(b.schema.Metas)

	data := make([][]core.Value, len(records))
	metaData := make([][]core.Value, len(records))
	var diags []core.Diagnostic

	for i, record := range records {
		row, rowDiags, err := b.convertRow(i, record, b.schema.Fields)
		if err != nil {
			return nil, err
		}
		metaRow, metaDiags, err := b.convertRow(i, record, b.schema.Metas)
		if err != nil {
			return nil, err
		}
		data[i] = row
		metaData[i] = metaRow
		diags = append(diags, rowDiags...)
		diags = append(diags, metaDiags...)
	}

	// Domains need every row, so they are attached only after conversion.
	for j := range columns {
		if columns[j].Kind == core.KindCategorical {
			columns[j].Domain = domainOf(data, j)
		}
	}

	for _, d := range diags {
		b.logger.Debug("data anomaly",
			zap.String("code", string(d.Code)),
			zap.Int("row", d.Row),
			zap.String("field", d.Field),
			zap.String("detail", d.Detail))
	}

	t, err := core.NewTable(b.schema.Name, columns, metas, data, metaData, diags)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble table: %w", err)
	}
	return t, nil
}

func (b *Builder) convertRow(i int, record core.RawRecord, fields []core.FieldDefinition) ([]core.Value, []core.Diagnostic, error) {
	row := make([]core.Value, len(fields))
	var diags []core.Diagnostic
	badGroups := make(map[string]bool)

	for j, f := range fields {
		raw, found, diag := lookup(record, f)
		if diag != nil && !badGroups[f.Group] {
			badGroups[f.Group] = true
			diag.Row = i
			diags = append(diags, *diag)
		}
		if !found {
			row[j] = core.Missing()
			continue
		}

		v, err := b.mapper.Coerce(f.Kind, raw)
		if err != nil {
			if f.Kind == core.KindTemporal {
				return nil, nil, &MalformedTemporalValueError{Row: i, Field: f.Name, Value: raw, Err: err}
			}
			if errors.Is(err, schema.ErrNestedValue) {
				diags = append(diags, core.Diagnostic{
					Code:   core.DiagUnexpectedNestedValue,
					Row:    i,
					Field:  f.Name,
					Detail: err.Error(),
				})
				row[j] = core.Missing()
				continue
			}
			return nil, nil, fmt.Errorf("record %d, field %q: %w", i, f.Name, err)
		}
		row[j] = v
	}
	return row, diags, nil
}

// lookup resolves the raw value of a field in a record. An absent group or
// key, or a null value, reports found=false. A group key holding something
// other than an object also yields a diagnostic.
func lookup(record core.RawRecord, f core.FieldDefinition) (any, bool, *core.Diagnostic) {
	container := map[string]any(record)
	if f.Group != "" {
		g, ok := record[f.Group]
		if !ok || g == nil {
			return nil, false, nil
		}
		switch sub := g.(type) {
		case map[string]any:
			container = sub
		case core.RawRecord:
			container = sub
		default:
			return nil, false, &core.Diagnostic{
				Code:   core.DiagUnexpectedGroupValue,
				Field:  f.Group,
				Detail: fmt.Sprintf("expected object, got %T", g),
			}
		}
	}

	raw, ok := container[f.Name]
	if !ok || raw == nil {
		return nil, false, nil
	}
	return raw, true, nil
}

func columnsFor(fields []core.FieldDefinition) []core.Column {
	cols := make([]core.Column, len(fields))
	for i, f := range fields {
		cols[i] = core.Column{Name: f.Name, Kind: f.Kind, Group: f.Group}
	}
	for i := range cols {
		if cols[i].Kind == core.KindCategorical {
			cols[i].Domain = []core.Value{}
		}
	}
	return cols
}

// domainOf returns the distinct present values of column j. Booleans sort
// before strings, false before true; strings sort lexically.
func domainOf(rows [][]core.Value, j int) []core.Value {
	var bools []bool
	var strs []string
	seenBool := make(map[bool]bool)
	seenStr := make(map[string]bool)

	for _, row := range rows {
		v := row[j]
		if v.IsMissing() {
			continue
		}
		switch x := v.Interface().(type) {
		case bool:
			if !seenBool[x] {
				seenBool[x] = true
				bools = append(bools, x)
			}
		default:
			s := v.String()
			if !seenStr[s] {
				seenStr[s] = true
				strs = append(strs, s)
			}
		}
	}

	sort.Slice(bools, func(a, b int) bool { return !bools[a] && bools[b] })
	sort.Strings(strs)

	domain := make([]core.Value, 0, len(bools)+len(strs))
	for _, x := range bools {
		domain = append(domain, core.NewValue(x))
	}
	for _, s := range strs {
		domain = append(domain, core.NewValue(s))
	}
	return domain
}
