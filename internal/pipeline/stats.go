package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/config"
	"github.com/wegman-software/osm-admin/internal/metrics"
	"github.com/wegman-software/osm-admin/internal/schema"
)

// Version is stamped into synthesized changeset tags and the PBF
// writingprogram. Overridden at build time.
var Version = "dev"

func programName() string {
	return "osm-admin " + Version
}

// ImportStats summarizes one PBF -> dump pass.
type ImportStats struct {
	Nodes      int64
	Ways       int64
	Relations  int64
	Changesets int64
	Users      int64
	Rows       map[schema.Table]int64
	DumpBytes  int64
	Elapsed    time.Duration
}

func (s *ImportStats) Fields() []zap.Field {
	return []zap.Field{
		zap.String("nodes", humanize.Comma(s.Nodes)),
		zap.String("ways", humanize.Comma(s.Ways)),
		zap.String("relations", humanize.Comma(s.Relations)),
		zap.String("changesets", humanize.Comma(s.Changesets)),
		zap.String("users", humanize.Comma(s.Users)),
		zap.String("dump_size", humanize.Bytes(uint64(s.DumpBytes))),
		zap.Duration("elapsed", s.Elapsed.Round(time.Second)),
	}
}

// ExportStats summarizes one dump -> PBF pass.
type ExportStats struct {
	Nodes      int64
	Ways       int64
	Relations  int64
	Blocks     int64
	Changesets int64
	Users      int64
	// SkippedRows counts rows dropped because they failed to decode.
	SkippedRows int64
	// Orphans counts child rows without a parent row.
	Orphans int64
	// UnknownChangesets counts elements whose changeset was not in the dump.
	UnknownChangesets int64
	PBFBytes          int64
	Elapsed           time.Duration
}

func (s *ExportStats) Fields() []zap.Field {
	return []zap.Field{
		zap.String("nodes", humanize.Comma(s.Nodes)),
		zap.String("ways", humanize.Comma(s.Ways)),
		zap.String("relations", humanize.Comma(s.Relations)),
		zap.Int64("blocks", s.Blocks),
		zap.String("changesets", humanize.Comma(s.Changesets)),
		zap.String("users", humanize.Comma(s.Users)),
		zap.Int64("skipped_rows", s.SkippedRows),
		zap.Int64("orphans", s.Orphans),
		zap.Int64("unknown_changesets", s.UnknownChangesets),
		zap.String("pbf_size", humanize.Bytes(uint64(s.PBFBytes))),
		zap.Duration("elapsed", s.Elapsed.Round(time.Second)),
	}
}

// startMetrics runs a system metrics collector for the duration of a pass
// when an interval is configured. The returned function stops it.
func startMetrics(ctx context.Context, cfg *config.Config, dir string, log *zap.Logger) func() {
	if cfg.MetricsInterval <= 0 {
		return func() {}
	}
	metricsCtx, cancel := context.WithCancel(ctx)
	collector := metrics.NewCollector(cfg.MetricsInterval, dir, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		collector.Start(metricsCtx)
	}()
	log.Info("System metrics collection started",
		zap.Duration("interval", cfg.MetricsInterval))

	return func() {
		cancel()
		<-done
		if s := collector.Last(); s != nil {
			log.Info("Final system metrics", s.Fields()...)
		}
	}
}

// diskUsage returns the total size of the regular files below dir.
func diskUsage(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
