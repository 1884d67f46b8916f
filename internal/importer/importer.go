// Package importer converts compendium spell stat blocks into the project's
// spell YAML files.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Importer orchestrates spell import from a Source to an output directory.
type Importer struct {
	source Source
	logger *zap.Logger
}

// New constructs an Importer backed by source.
//
// Precondition: source and logger must be non-nil.
func New(source Source, logger *zap.Logger) *Importer {
	return &Importer{source: source, logger: logger}
}

// Run loads spells from sourceDir, validates each and writes it to
// outputDir as <id>.yaml. Spells that fail validation are skipped with a
// warning.
//
// Postcondition: returns the number of files written, or an error when the
// source cannot be read or a file cannot be written.
func (imp *Importer) Run(sourceDir, outputDir string) (int, error) {
	overall := time.Now()

	spells, err := imp.source.Load(sourceDir)
	if err != nil {
		return 0, fmt.Errorf("loading source: %w", err)
	}
	imp.logger.Info("spells loaded", zap.Int("count", len(spells)), zap.Duration("elapsed", time.Since(overall)))

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory %s: %w", outputDir, err)
	}

	written := 0
	seen := make(map[string]bool, len(spells))
	for _, sd := range spells {
		if seen[sd.ID] {
			imp.logger.Warn("duplicate spell skipped", zap.String("id", sd.ID), zap.String("source", sd.Source))
			continue
		}
		data, err := yaml.Marshal(sd)
		if err != nil {
			return written, fmt.Errorf("serialising spell %q: %w", sd.ID, err)
		}
		if _, err := LoadSpellFromBytes(data); err != nil {
			imp.logger.Warn("invalid spell skipped", zap.String("id", sd.ID), zap.Error(err))
			continue
		}
		seen[sd.ID] = true

		outPath := filepath.Join(outputDir, sd.ID+".yaml")
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return written, fmt.Errorf("writing spell %q to %s: %w", sd.ID, outPath, err)
		}
		written++
		imp.logger.Debug("spell written", zap.String("path", outPath))
	}

	imp.logger.Info("import finished",
		zap.Int("written", written),
		zap.Int("skipped", len(spells)-written),
		zap.Duration("elapsed", time.Since(overall)),
	)
	return written, nil
}
