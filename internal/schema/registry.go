package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
)

// VaccineSurveySlug is the descriptor schema slug of vaccine survey samples.
const VaccineSurveySlug = "sample-vaccinesurvey"

const (
	groupLocation      = "location"
	groupImmunological = "immunological_data"
)

// VaccineSurvey returns the built-in vaccine survey schema. Each call returns
// a fresh copy, so callers may modify it.
func VaccineSurvey() *core.Schema {
	return &core.Schema{
		Name: VaccineSurveySlug,
		Fields: []core.FieldDefinition{
			{Name: "sex", Kind: core.KindCategorical},
			{Name: "entry_date", Kind: core.KindTemporal},
			{Name: "birth_date", Kind: core.KindTemporal},
			{Name: "village_code", Kind: core.KindCategorical},
			{Name: "latitude", Kind: core.KindNumeric, Group: groupLocation},
			{Name: "longitude", Kind: core.KindNumeric, Group: groupLocation},
			{Name: "ethnicity", Kind: core.KindCategorical},
			{Name: "fever", Kind: core.KindCategorical},
			{Name: "antimalaria_treatment", Kind: core.KindCategorical},
			{Name: "hospital_visit", Kind: core.KindCategorical},
			{Name: "vomit", Kind: core.KindCategorical},
			{Name: "cough", Kind: core.KindCategorical},
			{Name: "diarrhoea", Kind: core.KindCategorical},
			{Name: "bednet", Kind: core.KindCategorical},
			{Name: "body_temp", Kind: core.KindNumeric},
			{Name: "ama1", Kind: core.KindNumeric, Group: groupImmunological},
			{Name: "msp1", Kind: core.KindNumeric, Group: groupImmunological},
			{Name: "msp2", Kind: core.KindNumeric, Group: groupImmunological},
			{Name: "nanp", Kind: core.KindNumeric, Group: groupImmunological},
			{Name: "total_ige", Kind: core.KindNumeric, Group: groupImmunological},
		},
		Metas: []core.FieldDefinition{
			{Name: "study_code", Kind: core.KindText},
		},
	}
}

// Registry holds named schemas. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*core.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*core.Schema)}
}

// Register validates and stores a schema under its name, replacing any
// schema previously registered with that name.
func (r *Registry) Register(s *core.Schema) error {
	if err := validateNamed(s); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = cloneSchema(s)
	return nil
}

// Get returns a copy of the named schema.
func (r *Registry) Get(name string) (*core.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("schema %q not registered (available: %v)", name, r.namesLocked())
	}
	return cloneSchema(s), nil
}

// Names returns the registered schema names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry holding the built-in schemas.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a schema to the default registry.
func Register(s *core.Schema) error {
	return defaultRegistry.Register(s)
}

// Get looks up a schema in the default registry.
func Get(name string) (*core.Schema, error) {
	return defaultRegistry.Get(name)
}

func init() {
	if err := Register(VaccineSurvey()); err != nil {
		panic(err)
	}
}

func cloneSchema(s *core.Schema) *core.Schema {
	return &core.Schema{
		Name:   s.Name,
		Fields: append([]core.FieldDefinition(nil), s.Fields...),
		Metas:  append([]core.FieldDefinition(nil), s.Metas...),
	}
}
