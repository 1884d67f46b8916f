// Command import-spells converts compendium spell stat blocks into spell
// YAML files.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cory-johannsen/splittermond/internal/config"
	"github.com/cory-johannsen/splittermond/internal/importer"
	"github.com/cory-johannsen/splittermond/internal/importer/compendium"
	"github.com/cory-johannsen/splittermond/internal/observability"
)

func main() {
	sourceDir := flag.String("source", "", "directory of compendium .txt files")
	outputDir := flag.String("output", "content/spells", "output directory for spell YAML")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *sourceDir == "" {
		fmt.Fprintln(os.Stderr, "usage: import-spells -source <dir> [-output <dir>]")
		os.Exit(1)
	}

	logger, err := observability.NewLogger(config.LoggingConfig{Level: *level, Format: "console"}, "import-spells")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	start := time.Now()
	imp := importer.New(compendium.NewSource(logger), logger)
	n, err := imp.Run(*sourceDir, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d spell(s) in %s\n", n, time.Since(start).Round(time.Millisecond))
}
