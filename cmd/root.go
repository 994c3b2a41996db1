package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/config"
	"github.com/wegman-software/osm-admin/internal/logger"
	"github.com/wegman-software/osm-admin/internal/pipeline"
)

var (
	cfg             = config.DefaultConfig()
	configFile string
	startTime  time.Time
)

var rootCmd = &cobra.Command{
	Use:   "osm-admin",
	Short: "Convert between OSM PBF files and apidb PostgreSQL dumps",
	Long: `osm-admin converts OpenStreetMap data between PBF files and the
directory-format pg_dump archives of an apidb (openstreetmap-website) database.

  import  PBF -> apidb dump, optionally restored into PostgreSQL
  export  apidb dump (or a live database) -> PBF`,
	Version: pipeline.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		startTime = time.Now()
		if configFile != "" {
			if err := loadConfigFile(cmd.Flags(), configFile); err != nil {
				logger.Init(cfg.Verbose)
				exitWithError("invalid configuration file", err)
			}
		}

		cfg.AdjustJobs()

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
	},
}

func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file, overridden by explicit flags")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "Parallel jobs for PBF decoding and pg_dump/pg_restore")
	rootCmd.PersistentFlags().StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "Directory for the on-disk user and changeset indices")
	rootCmd.PersistentFlags().Int64Var(&cfg.FlushThreshold, "flush-threshold", cfg.FlushThreshold, "Elements between buffer flushes and progress reports")
	rootCmd.PersistentFlags().IntVar(&cfg.IndexBuffer, "index-buffer", cfg.IndexBuffer, "Entries buffered in memory before an index write")
	rootCmd.PersistentFlags().BoolVar(&cfg.Progress, "progress", false, "Show a progress bar while reading the input")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", 0, "Interval for system metrics logging (e.g., 10s, 1m), 0 disables")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "database", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "password", "W", cfg.DBPassword, "PostgreSQL password, written to the pgpass file")
	rootCmd.PersistentFlags().StringVar(&cfg.PgpassFile, "pgpass", cfg.PgpassFile, "pgpass file used by pg_dump and pg_restore")
	rootCmd.PersistentFlags().StringVar(&cfg.VarLogDir, "var-log", cfg.VarLogDir, "Directory for pg_dump and pg_restore output")
}

// loadConfigFile overlays the YAML file on the configuration and then
// reapplies every flag given on the command line.
func loadConfigFile(flags *pflag.FlagSet, path string) error {
	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := cfg.LoadFile(path); err != nil {
		return err
	}
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	fields := []zap.Field{zap.Duration("elapsed", time.Since(startTime).Round(time.Millisecond))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Error(msg, fields...)
	logger.Sync()
	os.Exit(1)
}
