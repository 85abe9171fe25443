package main

import (
	"fmt"
	"os"

	"github.com/docopt/docopt.go"
	"go.uber.org/zap"

	"github.com/TFMV/parqgen/fixtures"
)

func main() {
	usage := `Parquet Nested Fixture Generator.

Usage:
  parqgen generate
  parqgen (-h | --help)
  parqgen --version

Options:
  -h --help     Show this screen.
  --version     Show version.
`
	arguments, err := docopt.ParseDoc(usage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}
	if v, _ := arguments.Bool("--version"); v {
		fmt.Println("parqgen version 1.0.0")
		os.Exit(0)
	}

	// Initialize zap logger.
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Generating parquet fixtures", zap.String("dir", fixtures.DefaultDir))
	if err := fixtures.Generate(fixtures.DefaultDir, os.Stdout, logger); err != nil {
		logger.Fatal("Fixture generation failed", zap.Error(err))
	}
}
