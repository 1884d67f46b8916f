package compendium

// Field names of a compendium spell stat block.
const (
	FieldSchool         = "Schule"
	FieldType           = "Typus"
	FieldDifficulty     = "Schwierigkeit"
	FieldCosts          = "Kosten"
	FieldCastDuration   = "Zauberdauer"
	FieldRange          = "Reichweite"
	FieldEffect         = "Wirkung"
	FieldEffectDuration = "Wirkungsdauer"
	FieldDegrees        = "Erfolgsgrade"
	FieldEnhanced       = "Verstärkt"
)

var knownFields = map[string]bool{
	FieldSchool:         true,
	FieldType:           true,
	FieldDifficulty:     true,
	FieldCosts:          true,
	FieldCastDuration:   true,
	FieldRange:          true,
	FieldEffect:         true,
	FieldEffectDuration: true,
	FieldDegrees:        true,
	FieldEnhanced:       true,
}

// StatBlock is one spell as written in the compendium: a title line followed
// by "Field: value" lines. Lines that do not start a field continue the
// previous one.
type StatBlock struct {
	Title  string
	Fields map[string]string
	// Qualifiers holds the parenthesised part between a field name and its
	// colon, e.g. "2 EG/+K1V1" for "Verstärkt (2 EG/+K1V1): ...".
	Qualifiers map[string]string
	File       string
	Line       int
}
