package compendium

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splittermond/internal/importer"
)

var _ importer.Source = (*Source)(nil)

// Source implements importer.Source for a directory of compendium text
// files (*.txt), each holding any number of stat blocks.
type Source struct {
	logger *zap.Logger
}

// NewSource constructs a Source.
//
// Precondition: logger must be non-nil.
func NewSource(logger *zap.Logger) *Source { return &Source{logger: logger} }

// Load parses every *.txt file under sourceDir in name order. Blocks that
// fail to convert are logged and skipped.
func (s *Source) Load(sourceDir string) ([]*importer.SpellData, error) {
	files, err := filepath.Glob(filepath.Join(sourceDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", sourceDir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .txt files in %s", sourceDir)
	}
	sort.Strings(files)

	var out []*importer.SpellData
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		blocks, err := ParseBlocks(filepath.Base(path), data)
		if err != nil {
			s.logger.Warn("compendium file skipped", zap.String("file", path), zap.Error(err))
			continue
		}
		for _, b := range blocks {
			sd, err := Convert(b)
			if err != nil {
				s.logger.Warn("spell skipped", zap.Error(err))
				continue
			}
			out = append(out, sd)
		}
	}
	return out, nil
}
