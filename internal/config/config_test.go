package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *BBox
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"germany", "5.8663153,47.2701114,15.0419309,55.099161", &BBox{5.8663153, 47.2701114, 15.0419309, 55.099161}, false},
		{"spaces", " -1, -2 , 3,4", &BBox{-1, -2, 3, 4}, false},
		{"three values", "1,2,3", nil, true},
		{"not a number", "a,2,3,4", nil, true},
		{"left greater than right", "10,0,5,1", nil, true},
		{"bottom greater than top", "0,10,1,5", nil, true},
		{"outside world", "-181,0,0,1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBBox(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBBox(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseBBox(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ParseBBox(%q) = %+v, want %+v", tt.input, *got, *tt.want)
			}
		})
	}
}

func TestValidateImport(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateImport(); err == nil {
		t.Fatal("expected error without input file")
	}

	cfg.InputFile = "planet.osm.pbf"
	cfg.OutputDir = "out"
	cfg.TemplateDir = "template"
	if err := cfg.ValidateImport(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.FlushThreshold = 0
	if err := cfg.ValidateImport(); err == nil {
		t.Error("expected error for zero flush threshold")
	}
}

func TestValidateExport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DumpDir = "dump"
	cfg.OutputFile = "out.osm.pbf"
	if err := cfg.ValidateExport(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seq := int64(-1)
	cfg.ReplicationSequence = &seq
	if err := cfg.ValidateExport(); err == nil {
		t.Error("expected error for negative sequence number")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osm-admin.yaml")
	content := `
dump: /data/dump
output: /data/out.osm.pbf
calc_bounding_box: true
osmosis_replication_sequence_number: 4711
flush_threshold: 500
metrics_interval: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.DumpDir != "/data/dump" || cfg.OutputFile != "/data/out.osm.pbf" {
		t.Errorf("paths not loaded: %q %q", cfg.DumpDir, cfg.OutputFile)
	}
	if !cfg.CalcBBox {
		t.Error("expected calc_bounding_box to be set")
	}
	if cfg.ReplicationSequence == nil || *cfg.ReplicationSequence != 4711 {
		t.Errorf("ReplicationSequence = %v, want 4711", cfg.ReplicationSequence)
	}
	if cfg.FlushThreshold != 500 {
		t.Errorf("FlushThreshold = %d, want 500", cfg.FlushThreshold)
	}
	if cfg.MetricsInterval != 5*time.Second {
		t.Errorf("MetricsInterval = %v, want 5s", cfg.MetricsInterval)
	}
	// untouched keys keep defaults
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, want default 5432", cfg.DBPort)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
