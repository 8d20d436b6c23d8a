package resolwe

import (
	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

// DefaultSchema is the descriptor schema slug of vaccine survey samples.
const DefaultSchema = "sample-vaccinesurvey"

// DefaultSection is the descriptor section holding sample attributes.
const DefaultSection = "sample"

// Sample is one sample as returned by the Resolwe API. Only the fields the
// importer needs are decoded.
type Sample struct {
	ID         int            `json:"id"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name"`
	Descriptor map[string]any `json:"descriptor"`
}

// Record returns the named descriptor section as a raw record. A missing or
// non-object section yields an empty record, so every field reads as missing.
func (s Sample) Record(section string) core.RawRecord {
	if section == "" {
		section = DefaultSection
	}
	sub, ok := s.Descriptor[section].(map[string]any)
	if !ok {
		return core.RawRecord{}
	}
	return core.RawRecord(sub)
}

// page is the paginated list envelope used when a limit is requested.
type page struct {
	Count   int      `json:"count"`
	Next    *string  `json:"next"`
	Results []Sample `json:"results"`
}
