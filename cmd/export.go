package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/config"
	"github.com/wegman-software/osm-admin/internal/logger"
	"github.com/wegman-software/osm-admin/internal/pipeline"
)

var (
	bboxStr              string
	replicationTimestamp int64
	replicationSequence  int64
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Convert an apidb dump into a PBF file (dump -> PBF)",
	Long: `Convert a directory-format apidb dump into a PBF file with history metadata.

Users and changesets are indexed first, then nodes, ways and relations are
merge-joined with their tags, way nodes and members. All tables must be
sorted by id and version, as pg_dump writes them.

With --from-db the database is dumped into --dump first and the transaction
position of the dump is recorded in state.txt, which then supplies the
replication fields of the header.`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&cfg.DumpDir, "dump", "", "Dump directory containing toc.dat")
	exportCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", "", "Output PBF file")
	exportCmd.Flags().StringVarP(&bboxStr, "bounding-box", "b", "", "Header bounding box: left,bottom,right,top")
	exportCmd.Flags().BoolVar(&cfg.CalcBBox, "calc-bounding-box", false, "Calculate the header bounding box from the nodes, overrides --bounding-box")
	exportCmd.Flags().Int64Var(&replicationTimestamp, "osmosis-replication-timestamp", 0, "Replication timestamp (unix seconds)")
	exportCmd.Flags().Int64Var(&replicationSequence, "osmosis-replication-sequence-number", 0, "Replication sequence number")
	exportCmd.Flags().StringVar(&cfg.ReplicationBaseURL, "osmosis-replication-base-url", "", "Replication base URL")
	exportCmd.Flags().BoolVar(&cfg.CheckOrder, "check-order", cfg.CheckOrder, "Fail when a table is not sorted by id and version")
	exportCmd.Flags().BoolVar(&cfg.FromDB, "from-db", false, "Dump the database into --dump before exporting")
}

func runExport(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bounding box", err)
		}
		cfg.BBox = bbox
	}
	if cmd.Flags().Changed("osmosis-replication-timestamp") {
		cfg.ReplicationTimestamp = &replicationTimestamp
	}
	if cmd.Flags().Changed("osmosis-replication-sequence-number") {
		cfg.ReplicationSequence = &replicationSequence
	}

	if err := cfg.ValidateExport(); err != nil {
		exitWithError("invalid configuration", err)
	}

	log.Info("Starting export",
		zap.String("dump", cfg.DumpDir),
		zap.String("output", cfg.OutputFile),
		zap.Bool("from_db", cfg.FromDB),
		zap.Bool("calc_bbox", cfg.CalcBBox),
		zap.Bool("check_order", cfg.CheckOrder))

	stats, err := pipeline.NewExporter(cfg, log).Run(context.Background())
	if err != nil {
		exitWithError("export failed", err)
	}

	log.Info("Export complete", stats.Fields()...)
}
