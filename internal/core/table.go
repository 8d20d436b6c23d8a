package core

import (
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// DateLayout is the layout of temporal values in sample descriptors.
const DateLayout = "2006-01-02"

// Value is a single table cell. The zero Value is the missing-value marker;
// it is distinct from every valid value, including "", 0 and false.
type Value struct {
	raw   any
	valid bool
}

// Missing returns the missing-value marker.
func Missing() Value {
	return Value{}
}

// NewValue wraps a present value. A nil v yields the missing marker.
func NewValue(v any) Value {
	if v == nil {
		return Value{}
	}
	return Value{raw: v, valid: true}
}

// IsMissing reports whether the cell holds no value.
func (v Value) IsMissing() bool {
	return !v.valid
}

// Interface returns the underlying value, or nil when missing.
func (v Value) Interface() any {
	return v.raw
}

// String renders the value for display. Missing values render as "?".
func (v Value) String() string {
	if !v.valid {
		return "?"
	}
	switch x := v.raw.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(DateLayout)
	default:
		return fmt.Sprint(x)
	}
}

// Equal reports whether two cells hold the same value.
func (v Value) Equal(other Value) bool {
	if v.valid != other.valid {
		return false
	}
	if !v.valid {
		return true
	}
	if t, ok := v.raw.(time.Time); ok {
		o, ok := other.raw.(time.Time)
		return ok && t.Equal(o)
	}
	return reflect.DeepEqual(v.raw, other.raw)
}

// MarshalJSON encodes missing values as null and everything else as its raw value.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	switch x := v.raw.(type) {
	case string:
		return []byte(strconv.Quote(x)), nil
	case bool:
		return []byte(strconv.FormatBool(x)), nil
	case time.Time:
		return []byte(strconv.Quote(x.Format(DateLayout))), nil
	case float64:
		return []byte(strconv.FormatFloat(x, 'g', -1, 64)), nil
	case int, int64, int32:
		return []byte(fmt.Sprint(x)), nil
	default:
		return []byte(strconv.Quote(fmt.Sprint(x))), nil
	}
}

// Column is a typed table column derived from one field definition.
type Column struct {
	// Name is the field name.
	Name string

	// Kind is the column type.
	Kind Kind

	// Group is the sub-object the source field is nested under, if any.
	Group string

	// Domain lists the distinct values observed in a categorical column.
	// It is nil for every other kind.
	Domain []Value
}

// DomainIndex returns the position of v within the column domain.
func (c Column) DomainIndex(v Value) (int, bool) {
	for i, d := range c.Domain {
		if d.Equal(v) {
			return i, true
		}
	}
	return -1, false
}

// DiagnosticCode classifies a non-fatal data-shape anomaly.
type DiagnosticCode string

const (
	// DiagUnexpectedNestedValue marks a scalar field that held a nested object.
	DiagUnexpectedNestedValue DiagnosticCode = "unexpected_nested_value"

	// DiagUnexpectedGroupValue marks a group key that did not hold an object.
	DiagUnexpectedGroupValue DiagnosticCode = "unexpected_group_value"
)

// Diagnostic records a data anomaly that was handled locally during a build.
type Diagnostic struct {
	Code   DiagnosticCode
	Row    int
	Field  string
	Detail string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("row %d, field %q: %s (%s)", d.Row, d.Field, d.Code, d.Detail)
}

// Table is a rectangular, immutable set of typed rows. Data columns follow
// schema order; meta columns are kept apart from the analysis matrix.
type Table struct {
	name        string
	columns     []Column
	metas       []Column
	data        [][]Value
	metaData    [][]Value
	diagnostics []Diagnostic
}

// NewTable assembles a table. The slices are owned by the table afterwards;
// callers must not modify them.
func NewTable(name string, columns, metas []Column, data, metaData [][]Value, diagnostics []Diagnostic) (*Table, error) {
	if len(data) != len(metaData) {
		return nil, fmt.Errorf("row count mismatch: %d data rows, %d meta rows", len(data), len(metaData))
	}
	for i := range data {
		if len(data[i]) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(data[i]), len(columns))
		}
		if len(metaData[i]) != len(metas) {
			return nil, fmt.Errorf("row %d has %d meta values, want %d", i, len(metaData[i]), len(metas))
		}
	}
	return &Table{
		name:        name,
		columns:     columns,
		metas:       metas,
		data:        data,
		metaData:    metaData,
		diagnostics: diagnostics,
	}, nil
}

// Name returns the schema name the table was built from.
func (t *Table) Name() string { return t.name }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.data) }

// Columns returns a copy of the data columns.
func (t *Table) Columns() []Column { return copyColumns(t.columns) }

// Metas returns a copy of the meta columns.
func (t *Table) Metas() []Column { return copyColumns(t.metas) }

// Column looks up a data or meta column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.columns {
		if c.Name == name {
			return copyColumn(c), true
		}
	}
	for _, c := range t.metas {
		if c.Name == name {
			return copyColumn(c), true
		}
	}
	return Column{}, false
}

// Row returns a copy of the data values of row i.
func (t *Table) Row(i int) []Value {
	return append([]Value(nil), t.data[i]...)
}

// MetaRow returns a copy of the meta values of row i.
func (t *Table) MetaRow(i int) []Value {
	return append([]Value(nil), t.metaData[i]...)
}

// Value returns the cell of row i in the named data or meta column.
func (t *Table) Value(i int, name string) (Value, bool) {
	for j, c := range t.columns {
		if c.Name == name {
			return t.data[i][j], true
		}
	}
	for j, c := range t.metas {
		if c.Name == name {
			return t.metaData[i][j], true
		}
	}
	return Value{}, false
}

// Diagnostics returns the non-fatal anomalies recorded during the build.
func (t *Table) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), t.diagnostics...)
}

func copyColumns(cols []Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = copyColumn(c)
	}
	return out
}

func copyColumn(c Column) Column {
	if c.Domain != nil {
		c.Domain = append([]Value(nil), c.Domain...)
	}
	return c
}
