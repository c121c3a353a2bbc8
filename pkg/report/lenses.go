package report

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Lens is one named view of a generated report (e.g. "Overview"). The
// instruction steers what the backend writes for that section; the core never
// interprets the resulting text.
type Lens struct {
	Name        string `yaml:"name" json:"name"`
	Instruction string `yaml:"instruction" json:"instruction"`
}

type Catalog struct {
	Lenses []Lens `yaml:"lenses" json:"lenses"`
}

// LoadCatalog reads a lens catalog from a YAML file, falling back to the
// built-in catalog when no path is configured.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}

	var cfg Catalog
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Catalog{}, err
	}

	if len(cfg.Lenses) == 0 {
		return Catalog{}, errors.New("no lenses configured")
	}

	return cfg, nil
}

func DefaultCatalog() Catalog {
	return Catalog{Lenses: []Lens{
		{Name: "Overview", Instruction: "Summarize the patient's current presentation and notable changes since the last visit."},
		{Name: "Interventions", Instruction: "Suggest concrete interventions for each reported issue, ordered by pain level."},
		{Name: "Risk Factors", Instruction: "List risk factors implied by the vitals and issue descriptions."},
	}}
}

func (c Catalog) Names() []string {
	names := make([]string, len(c.Lenses))
	for i, lens := range c.Lenses {
		names[i] = lens.Name
	}
	return names
}
