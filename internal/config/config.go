package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BBox represents a geographic bounding box in degrees
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// ParseBBox parses a bbox string in format "left,bottom,right,top"
// (minlon,minlat,maxlon,maxlat), e.g. "5.8663153,47.2701114,15.0419309,55.099161"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: left,bottom,right,top")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("left (%f) must be <= right (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("bottom (%f) must be <= top (%f)", bbox.MinLat, bbox.MaxLat)
	}
	if bbox.MinLon < -180 || bbox.MaxLon > 180 || bbox.MinLat < -90 || bbox.MaxLat > 90 {
		return nil, fmt.Errorf("bbox %q is outside of -180,-90,180,90", s)
	}

	return bbox, nil
}

// Config holds the configuration of one conversion job
type Config struct {
	// Import (PBF -> dump)
	InputFile   string `yaml:"input"`
	TemplateDir string `yaml:"template"`
	OutputDir   string `yaml:"output_dir"`
	Restore     bool   `yaml:"restore"`

	// Export (dump -> PBF)
	DumpDir              string `yaml:"dump"`
	OutputFile           string `yaml:"output"`
	BBox                 *BBox  `yaml:"bounding_box"`
	CalcBBox             bool   `yaml:"calc_bounding_box"`
	ReplicationTimestamp *int64 `yaml:"osmosis_replication_timestamp"`
	ReplicationSequence  *int64 `yaml:"osmosis_replication_sequence_number"`
	ReplicationBaseURL   string `yaml:"osmosis_replication_base_url"`
	CheckOrder           bool   `yaml:"check_order"`
	FromDB               bool   `yaml:"from_db"`

	// Processing
	TempDir        string `yaml:"temp_dir"`
	FlushThreshold int64  `yaml:"flush_threshold"`
	IndexBuffer    int    `yaml:"index_buffer"`
	Jobs           int    `yaml:"jobs"`
	Progress       bool   `yaml:"progress"`

	// Database
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	PgpassFile string `yaml:"pgpass_file"`
	VarLogDir  string `yaml:"var_log_dir"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FlushThreshold:  10_000_000,
		IndexBuffer:     1_000_000,
		CheckOrder:      true,
		Jobs:            runtime.NumCPU(),
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "openstreetmap",
		DBUser:          "postgres",
		PgpassFile:      "/root/.pgpass",
		VarLogDir:       "/var/log/osm",
		MetricsInterval: 0,
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// AdjustJobs caps the number of database jobs to the available CPUs. Zero
// or negative means all CPUs.
func (c *Config) AdjustJobs() {
	cpus := runtime.NumCPU()
	if c.Jobs <= 0 || c.Jobs > cpus {
		c.Jobs = cpus
	}
}

func (c *Config) validateCommon() error {
	if c.FlushThreshold < 1 {
		return fmt.Errorf("flush threshold must be at least 1")
	}
	if c.IndexBuffer < 1 {
		return fmt.Errorf("index buffer must be at least 1")
	}
	return nil
}

// ValidateImport checks that the configuration can drive a PBF -> dump pass
func (c *Config) ValidateImport() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.TemplateDir == "" {
		return fmt.Errorf("template directory is required")
	}
	return c.validateCommon()
}

// ValidateExport checks that the configuration can drive a dump -> PBF pass
func (c *Config) ValidateExport() error {
	if c.DumpDir == "" {
		return fmt.Errorf("dump directory is required")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file is required")
	}
	if c.ReplicationSequence != nil && *c.ReplicationSequence < 0 {
		return fmt.Errorf("replication sequence number must not be negative")
	}
	return c.validateCommon()
}
