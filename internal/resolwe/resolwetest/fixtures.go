package resolwetest

// SchemaSlug is the descriptor schema slug used by the fixtures.
const SchemaSlug = "sample-vaccinesurvey"

// Fixture is a named sample descriptor.
type Fixture struct {
	Name       string
	Descriptor map[string]any
}

// VaccineSurveyFixtures returns a small vaccine survey cohort. The records
// cover missing fields, an absent group, boolean answers and empty dates.
func VaccineSurveyFixtures() []Fixture {
	return []Fixture{
		{Name: "VS-001", Descriptor: map[string]any{"sample": map[string]any{
			"study_code":            "VS-001",
			"sex":                   "M",
			"entry_date":            "2016-03-14",
			"birth_date":            "2011-07-02",
			"village_code":          float64(12),
			"location":              map[string]any{"latitude": 5.6037, "longitude": -0.187},
			"ethnicity":             "Akan",
			"fever":                 true,
			"antimalaria_treatment": false,
			"hospital_visit":        false,
			"vomit":                 "no",
			"cough":                 "yes",
			"diarrhoea":             "no",
			"bednet":                true,
			"body_temp":             38.2,
			"immunological_data": map[string]any{
				"ama1": 12.5, "msp1": 3.1, "msp2": 0.4, "nanp": 7.25, "total_ige": 120.0,
			},
		}}},
		{Name: "VS-002", Descriptor: map[string]any{"sample": map[string]any{
			"study_code":   "VS-002",
			"sex":          "F",
			"entry_date":   "2016-03-15",
			"birth_date":   "",
			"village_code": float64(7),
			"location":     map[string]any{"latitude": 5.55, "longitude": -0.2},
			"ethnicity":    "Ewe",
			"fever":        false,
			"bednet":       false,
			"body_temp":    36.9,
		}}},
		{Name: "VS-003", Descriptor: map[string]any{"sample": map[string]any{
			"study_code":   "VS-003",
			"sex":          "M",
			"entry_date":   "2016-04-01",
			"village_code": float64(12),
			"ethnicity":    "Akan",
			"cough":        "no",
			"immunological_data": map[string]any{
				"ama1": 0.0, "msp1": 1.2,
			},
		}}},
	}
}

// Populate adds the fixtures to f under SchemaSlug, plus one sample of an
// unrelated schema that listings filtered by SchemaSlug must not return.
func Populate(f *Fake) {
	for _, fx := range VaccineSurveyFixtures() {
		f.AddSample(SchemaSlug, fx.Name, fx.Descriptor)
	}
	f.AddSample("sample-other", "other", map[string]any{"sample": map[string]any{"study_code": "X"}})
}
