package measure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EventSource names the clinical record type that can satisfy a measure.
type EventSource string

const (
	SourceLab          EventSource = "lab"
	SourceImmunization EventSource = "immunization"
)

// Definition ties an alert type to its qualifying event and compliance window.
// A member whose most recent qualifying event is older than the window is
// overdue for the measure.
type Definition struct {
	Type       string      `yaml:"type" json:"type"`
	Source     EventSource `yaml:"source" json:"source"`
	Code       string      `yaml:"code" json:"code"`
	WindowDays int         `yaml:"window_days" json:"window_days"`
}

// Window returns the compliance window as elapsed time. An event exactly at
// the boundary still counts as compliant.
func (d Definition) Window() time.Duration {
	return time.Duration(d.WindowDays) * 24 * time.Hour
}

type Catalog struct {
	Measures []Definition `yaml:"measures" json:"measures"`
}

// Load reads measure definitions from a YAML file, falling back to the
// built-in catalog when no path is given.
func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return DefaultCatalog(), err
	}
	if err := cat.validate(); err != nil {
		return DefaultCatalog(), err
	}
	return cat, nil
}

func (c Catalog) validate() error {
	if len(c.Measures) == 0 {
		return fmt.Errorf("measure catalog empty")
	}
	seen := make(map[string]struct{}, len(c.Measures))
	for _, def := range c.Measures {
		if def.Type == "" || def.Code == "" {
			return fmt.Errorf("measure definition missing type or code")
		}
		if def.Source != SourceLab && def.Source != SourceImmunization {
			return fmt.Errorf("measure %s: unknown source %q", def.Type, def.Source)
		}
		if def.WindowDays <= 0 {
			return fmt.Errorf("measure %s: window must be positive", def.Type)
		}
		if _, dup := seen[def.Type]; dup {
			return fmt.Errorf("measure %s defined twice", def.Type)
		}
		seen[def.Type] = struct{}{}
	}
	return nil
}

// DefinitionsFor returns the measures applicable to a member. Today every
// member gets the full catalog; the argument is the extension point for
// demographic-specific measures.
func (c Catalog) DefinitionsFor(publicID string) []Definition {
	_ = publicID
	defs := make([]Definition, len(c.Measures))
	copy(defs, c.Measures)
	return defs
}

func (c Catalog) Lookup(alertType string) (Definition, bool) {
	for _, def := range c.Measures {
		if strings.EqualFold(def.Type, alertType) {
			return def, true
		}
	}
	return Definition{}, false
}

func DefaultCatalog() Catalog {
	return Catalog{Measures: []Definition{
		{
			Type:       "A1C_OVERDUE",
			Source:     SourceLab,
			Code:       "4548-4",
			WindowDays: 180,
		},
		{
			Type:       "FLU_OVERDUE",
			Source:     SourceImmunization,
			Code:       "FLU",
			WindowDays: 365,
		},
	}}
}
