package compendium

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cory-johannsen/splittermond/internal/game/cost"
	"github.com/cory-johannsen/splittermond/internal/importer"
)

var (
	schoolLevel = regexp.MustCompile(`^(.*\S)\s+(\d+)$`)
	enhancement = regexp.MustCompile(`^(\d+)\s*EG\s*/\s*\+?\s*(\S+)$`)
)

// Convert turns a stat block into SpellData. Costs are normalized to their
// canonical notation.
//
// Postcondition: returns a spell that passes Validate, or an error naming the
// block.
func Convert(b StatBlock) (*importer.SpellData, error) {
	sd := &importer.SpellData{
		ID:             importer.NameToID(b.Title),
		Name:           b.Title,
		Difficulty:     b.Fields[FieldDifficulty],
		CastDuration:   b.Fields[FieldCastDuration],
		Range:          b.Fields[FieldRange],
		Effect:         b.Fields[FieldEffect],
		EffectDuration: b.Fields[FieldEffectDuration],
		Types:          splitList(b.Fields[FieldType]),
		Source:         fmt.Sprintf("%s:%d", b.File, b.Line),
	}
	if opts := b.Fields[FieldDegrees]; opts != "" {
		sd.DegreeOfSuccessOptions = splitList(opts)
	}

	var errs []error
	schools, err := parseSchools(b.Fields[FieldSchool])
	if err != nil {
		errs = append(errs, err)
	}
	sd.Schools = schools

	raw, ok := b.Fields[FieldCosts]
	if !ok {
		errs = append(errs, errors.New("missing Kosten"))
	} else if c, err := cost.Parse(raw); err != nil {
		errs = append(errs, err)
	} else {
		sd.Costs = c.String()
	}

	if q, ok := b.Qualifiers[FieldEnhanced]; ok {
		e, err := parseEnhancement(q, b.Fields[FieldEnhanced])
		if err != nil {
			errs = append(errs, err)
		}
		sd.Enhancement = e
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%s:%d %q: %w", b.File, b.Line, b.Title, err)
	}
	if err := sd.Validate(); err != nil {
		return nil, fmt.Errorf("%s:%d %q: %w", b.File, b.Line, b.Title, err)
	}
	return sd, nil
}

// parseSchools reads "Feuermagie 2, Kampfmagie 3".
func parseSchools(s string) ([]importer.SchoolLevel, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("missing Schule")
	}
	var out []importer.SchoolLevel
	for _, part := range splitList(s) {
		m := schoolLevel.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("school %q has no level", part)
		}
		lvl, _ := strconv.Atoi(m[2])
		out = append(out, importer.SchoolLevel{School: m[1], Level: lvl})
	}
	return out, nil
}

// parseEnhancement reads the qualifier "2 EG/+K1V1".
func parseEnhancement(qualifier, description string) (*importer.Enhancement, error) {
	m := enhancement.FindStringSubmatch(strings.TrimSpace(qualifier))
	if m == nil {
		return nil, fmt.Errorf("malformed Verstärkt qualifier %q", qualifier)
	}
	degrees, _ := strconv.Atoi(m[1])
	c, err := cost.Parse(m[2])
	if err != nil {
		return nil, fmt.Errorf("Verstärkt: %w", err)
	}
	return &importer.Enhancement{Degrees: degrees, Cost: c.String(), Description: description}, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
