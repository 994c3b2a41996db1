package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/logger"
	"github.com/wegman-software/osm-admin/internal/pipeline"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Convert a PBF file into an apidb dump (PBF -> dump)",
	Long: `Convert a PBF file into a directory-format apidb dump:

  1. Copy the template directory (toc.dat of an empty apidb schema dump) to the output
  2. Write current, history, tag, way node and member rows for every element
  3. Write one changeset per changeset id and one placeholder user per user id
  4. Optionally restore the dump with pg_restore

A failed import leaves a partial dump behind; discard the output directory.`,
	Args: cobra.NoArgs,
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&cfg.InputFile, "input", "i", "", "Input PBF file")
	importCmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", "", "Output dump directory")
	importCmd.Flags().StringVarP(&cfg.TemplateDir, "template", "t", "", "Template dump directory containing toc.dat")
	importCmd.Flags().BoolVar(&cfg.Restore, "restore", false, "Restore the dump into the database after writing it")
}

func runImport(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.ValidateImport(); err != nil {
		exitWithError("invalid configuration", err)
	}

	log.Info("Starting import",
		zap.String("input", cfg.InputFile),
		zap.String("template", cfg.TemplateDir),
		zap.String("output", cfg.OutputDir),
		zap.Bool("restore", cfg.Restore),
		zap.Int("jobs", cfg.Jobs))

	stats, err := pipeline.NewImporter(cfg, log).Run(context.Background())
	if err != nil {
		exitWithError("import failed", err)
	}

	log.Info("Import complete", stats.Fields()...)
}
