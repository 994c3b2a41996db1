package metrics

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/logger"
)

// Snapshot is one sample of the resources a conversion pass uses
type Snapshot struct {
	ProcessCPUPercent float64 // per core, can exceed 100 on multi-core
	ProcessRSS        uint64
	MemoryPercent     float64
	DiskFree          uint64 // free space of the watched directory
	DiskReadBps       float64
	DiskWriteBps      float64
	Timestamp         time.Time
}

// Collector periodically samples and logs process and disk metrics
type Collector struct {
	interval time.Duration
	dir      string
	log      *zap.Logger
	proc     *process.Process

	lastRead  uint64
	lastWrite uint64
	lastTime  time.Time

	mu   sync.RWMutex
	last *Snapshot
}

// NewCollector creates a collector watching the free space of dir
func NewCollector(interval time.Duration, dir string, log *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		dir:      dir,
		log:      logger.Or(log),
		proc:     proc,
	}
}

// Start samples every interval until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample sets the disk baseline
	c.Collect()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.log.Info("System metrics", c.Collect().Fields()...)
		}
	}
}

// Last returns the most recent snapshot, or nil before the first sample
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Collect takes one sample. Metrics that cannot be read stay zero.
func (c *Collector) Collect() *Snapshot {
	s := &Snapshot{Timestamp: time.Now()}

	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
		if mi, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSS = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vm.UsedPercent
	}
	if c.dir != "" {
		if u, err := disk.Usage(c.dir); err == nil {
			s.DiskFree = u.Free
		}
	}
	s.DiskReadBps, s.DiskWriteBps = c.diskRates(s.Timestamp)

	c.mu.Lock()
	c.last = s
	c.mu.Unlock()
	return s
}

func (c *Collector) diskRates(now time.Time) (readBps, writeBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}
	var read, write uint64
	for _, counter := range counters {
		read += counter.ReadBytes
		write += counter.WriteBytes
	}

	first := c.lastTime.IsZero()
	elapsed := now.Sub(c.lastTime).Seconds()
	prevRead, prevWrite := c.lastRead, c.lastWrite
	c.lastRead, c.lastWrite, c.lastTime = read, write, now

	if first || elapsed < 0.1 || read < prevRead || write < prevWrite {
		return 0, 0
	}
	return float64(read-prevRead) / elapsed, float64(write-prevWrite) / elapsed
}

// Fields renders the snapshot as log fields
func (s *Snapshot) Fields() []zap.Field {
	return []zap.Field{
		zap.Float64("proc_cpu", s.ProcessCPUPercent),
		zap.String("rss", humanize.Bytes(s.ProcessRSS)),
		zap.Float64("mem_pct", s.MemoryPercent),
		zap.String("disk_free", humanize.Bytes(s.DiskFree)),
		zap.String("disk_r", humanize.Bytes(uint64(s.DiskReadBps))+"/s"),
		zap.String("disk_w", humanize.Bytes(uint64(s.DiskWriteBps))+"/s"),
	}
}
