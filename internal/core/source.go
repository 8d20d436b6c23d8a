package core

import (
	"context"
)

// RawRecord is one externally sourced sample as an untyped nested mapping.
// Builders only read from it.
type RawRecord map[string]any

// SampleSource supplies raw records. Implementations typically talk to a
// remote sample-management server.
type SampleSource interface {
	// Records returns the raw records of every sample visible to the caller.
	Records(ctx context.Context) ([]RawRecord, error)
}

// TableSink receives built tables, e.g. a database or a message topic.
type TableSink interface {
	// Publish delivers a table to the sink. Implementations replace any
	// rows previously published under the same table name.
	Publish(ctx context.Context, table *Table) error

	// Close releases the sink's connections.
	Close() error
}
