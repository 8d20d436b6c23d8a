package sink

import (
	gojson "github.com/goccy/go-json"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

// RowObject returns row i as a column-name keyed object, data columns first
// and meta columns after. Missing cells are nil.
func RowObject(t *core.Table, i int) map[string]core.Value {
	cols := t.Columns()
	metas := t.Metas()
	row := t.Row(i)
	metaRow := t.MetaRow(i)

	obj := make(map[string]core.Value, len(cols)+len(metas))
	for j, c := range cols {
		obj[c.Name] = row[j]
	}
	for j, c := range metas {
		obj[c.Name] = metaRow[j]
	}
	return obj
}

// EncodeRow renders row i as a JSON object.
func EncodeRow(t *core.Table, i int) ([]byte, error) {
	return gojson.Marshal(RowObject(t, i))
}
