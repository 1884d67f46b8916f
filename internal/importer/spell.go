package importer

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/splittermond/internal/game/cost"
)

// SpellData is the YAML form of one imported spell.
type SpellData struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	Schools        []SchoolLevel `yaml:"schools"`
	Types          []string      `yaml:"types,omitempty"`
	Difficulty     string        `yaml:"difficulty"`
	Costs          string        `yaml:"costs"`
	CastDuration   string        `yaml:"cast_duration,omitempty"`
	Range          string        `yaml:"range,omitempty"`
	Effect         string        `yaml:"effect,omitempty"`
	EffectDuration string        `yaml:"effect_duration,omitempty"`
	// DegreeOfSuccessOptions lists the options a degree of success can buy.
	DegreeOfSuccessOptions []string     `yaml:"degree_of_success_options,omitempty"`
	Enhancement            *Enhancement `yaml:"enhancement,omitempty"`
	Source                 string       `yaml:"source,omitempty"`
}

// SchoolLevel is a magic school and the spell's level in it.
type SchoolLevel struct {
	School string `yaml:"school"`
	Level  int    `yaml:"level"`
}

// Enhancement is the enhanced casting ("Verstärkt") of a spell.
type Enhancement struct {
	Degrees     int    `yaml:"degrees"`
	Cost        string `yaml:"cost"`
	Description string `yaml:"description,omitempty"`
}

// Validate checks that s is complete and that its costs parse.
//
// Postcondition: returns nil or an error naming every problem found.
func (s *SpellData) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Schools) == 0 {
		errs = append(errs, errors.New("at least one school is required"))
	}
	for _, sl := range s.Schools {
		if sl.Level < 0 || sl.Level > 5 {
			errs = append(errs, fmt.Errorf("school %s: level %d out of range 0..5", sl.School, sl.Level))
		}
	}
	if _, err := cost.Parse(s.Costs); err != nil {
		errs = append(errs, fmt.Errorf("costs: %w", err))
	}
	if e := s.Enhancement; e != nil {
		if e.Degrees < 1 {
			errs = append(errs, fmt.Errorf("enhancement: degrees must be >= 1, got %d", e.Degrees))
		}
		if _, err := cost.Parse(e.Cost); err != nil {
			errs = append(errs, fmt.Errorf("enhancement cost: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LoadSpellFromBytes decodes and validates one spell file.
func LoadSpellFromBytes(data []byte) (*SpellData, error) {
	var s SpellData
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing spell: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("spell %q: %w", s.ID, err)
	}
	return &s, nil
}

// Source loads spells from a format-specific source directory.
//
// Precondition: sourceDir must exist.
// Postcondition: returns the spells that converted cleanly, or a non-nil
// error when the directory cannot be read.
type Source interface {
	Load(sourceDir string) ([]*SpellData, error)
}
