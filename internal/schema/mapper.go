package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

var (
	// ErrNestedValue is returned when a scalar was expected but the raw value is a nested object.
	ErrNestedValue = errors.New("unexpected nested value")

	// ErrInvalidDate is returned when a temporal value does not match the date layout.
	ErrInvalidDate = errors.New("invalid date")
)

// Mapper coerces raw descriptor values into cell values according to a field kind.
type Mapper struct {
	dateLayout string
}

// NewMapper creates a mapper using the YYYY-MM-DD date layout.
func NewMapper() *Mapper {
	return &Mapper{dateLayout: core.DateLayout}
}

// Coerce converts a raw value to a cell of the given kind. A nil raw value
// yields the missing marker. Text and temporal coercion failures are returned
// as errors; the caller decides whether they are fatal.
func (m *Mapper) Coerce(kind core.Kind, raw any) (core.Value, error) {
	if raw == nil {
		return core.Missing(), nil
	}

	switch kind {
	case core.KindCategorical:
		v, err := m.ToCategorical(raw)
		if err != nil {
			return core.Missing(), err
		}
		return core.NewValue(v), nil
	case core.KindNumeric:
		return core.NewValue(m.ToNumeric(raw)), nil
	case core.KindTemporal:
		t, ok, err := m.ToTemporal(raw)
		if err != nil || !ok {
			return core.Missing(), err
		}
		return core.NewValue(t), nil
	case core.KindText:
		s, err := m.ToText(raw)
		if err != nil {
			return core.Missing(), err
		}
		return core.NewValue(s), nil
	default:
		return core.Missing(), fmt.Errorf("unsupported field kind %v", kind)
	}
}

// ToCategorical keeps booleans as native bools and renders every other value as text.
func (m *Mapper) ToCategorical(value any) (any, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	switch v := value.(type) {
	case map[string]any, core.RawRecord:
		// Nested objects still become a category, keyed by their JSON form.
		data, err := gojson.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to category: %w", value, err)
		}
		return string(data), nil
	}
	return m.ToText(value)
}

// ToNumeric passes numeric values through unchanged.
func (m *Mapper) ToNumeric(value any) any {
	if n, ok := value.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return value
}

// ToTemporal parses a date. The boolean result is false when the raw value is
// empty, which callers treat as missing rather than malformed.
func (m *Mapper) ToTemporal(value any) (time.Time, bool, error) {
	if t, ok := value.(time.Time); ok {
		return t, true, nil
	}
	if _, ok := value.(bool); ok {
		return time.Time{}, false, fmt.Errorf("%w: boolean %v", ErrInvalidDate, value)
	}

	s, err := m.ToText(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(m.dateLayout, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %q does not match %s", ErrInvalidDate, s, m.dateLayout)
	}
	return t, true, nil
}

// ToText renders a value as text. Lists are rendered in their JSON form;
// nested objects are rejected with ErrNestedValue.
func (m *Mapper) ToText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.Number:
		return v.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(m.dateLayout), nil
	case map[string]any, core.RawRecord:
		return "", fmt.Errorf("%w: %T", ErrNestedValue, value)
	case []any:
		data, err := gojson.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cannot convert %T to text: %w", value, err)
		}
		return string(data), nil
	default:
		return fmt.Sprint(v), nil
	}
}
