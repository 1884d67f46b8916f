package importer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/splittermond/internal/importer"
	"github.com/cory-johannsen/splittermond/internal/importer/compendium"
)

const compendiumText = `Feuerstrahl
Schule: Feuermagie 2, Kampfmagie 2
Typus: Feuer, Schaden
Schwierigkeit: Verteidigung
Kosten: 8V2
Zauberdauer: 3 Ticks
Reichweite: 10 m
Wirkung: Ein Strahl aus Flammen trifft das Ziel
und verursacht 2W6 Feuerschaden.
Wirkungsdauer: augenblicklich
Erfolgsgrade: Auslösezeit, Reichweite, Schaden
Verstärkt (1 EG/+1V1): Der Schaden steigt um 3 Punkte.

Kaputter Zauber
Schule: Bann 1
Kosten: 4X

Rüstung des Glaubens
Schule: Schutzmagie 1
Schwierigkeit: 18
Kosten: K4V1
Wirkungsdauer: kanalisiert
`

func writeCompendium(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grundregeln.txt"), []byte(compendiumText), 0o644))
	return dir
}

func TestImporter_Run_WritesValidSpells(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	outDir := t.TempDir()
	imp := importer.New(compendium.NewSource(logger), logger)
	n, err := imp.Run(writeCompendium(t), outDir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(outDir, "feuerstrahl.yaml"))
	require.NoError(t, err)
	spell, err := importer.LoadSpellFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, "Feuerstrahl", spell.Name)
	assert.Equal(t, []importer.SchoolLevel{{School: "Feuermagie", Level: 2}, {School: "Kampfmagie", Level: 2}}, spell.Schools)
	assert.Equal(t, []string{"Feuer", "Schaden"}, spell.Types)
	assert.Equal(t, "8V2", spell.Costs)
	assert.Equal(t, "Ein Strahl aus Flammen trifft das Ziel und verursacht 2W6 Feuerschaden.", spell.Effect)
	assert.Equal(t, []string{"Auslösezeit", "Reichweite", "Schaden"}, spell.DegreeOfSuccessOptions)
	require.NotNil(t, spell.Enhancement)
	assert.Equal(t, 1, spell.Enhancement.Degrees)
	assert.Equal(t, "1V1", spell.Enhancement.Cost)

	armour, err := os.ReadFile(filepath.Join(outDir, "ruestung_des_glaubens.yaml"))
	require.NoError(t, err)
	s2, err := importer.LoadSpellFromBytes(armour)
	require.NoError(t, err)
	assert.Equal(t, "K4V1", s2.Costs)

	skipped := logs.FilterMessage("spell skipped").All()
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].ContextMap()["error"], "Kaputter Zauber")
}

func TestImporter_Run_MissingSource(t *testing.T) {
	imp := importer.New(compendium.NewSource(zap.NewNop()), zap.NewNop())
	_, err := imp.Run(t.TempDir(), t.TempDir())
	assert.Error(t, err)
}

func TestLoadSpellFromBytes_RejectsUnknownFields(t *testing.T) {
	_, err := importer.LoadSpellFromBytes([]byte("id: x\nname: X\nschools: [{school: Bann, level: 1}]\ncosts: \"2\"\nmana: 3\n"))
	assert.Error(t, err)
}

func TestSpellData_Validate(t *testing.T) {
	s := &importer.SpellData{
		ID:          "x",
		Name:        "X",
		Schools:     []importer.SchoolLevel{{School: "Bann", Level: 7}},
		Costs:       "2V",
		Enhancement: &importer.Enhancement{Degrees: 0, Cost: "1"},
	}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level 7")
	assert.Contains(t, err.Error(), "costs")
	assert.Contains(t, err.Error(), "degrees")
}
