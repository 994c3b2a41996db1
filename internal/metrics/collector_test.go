package metrics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	c := NewCollector(0, dir, zap.NewNop())
	if c.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s default", c.interval)
	}
	if c.Last() != nil {
		t.Error("Last() before first sample should be nil")
	}

	s := c.Collect()
	if s.ProcessRSS == 0 {
		t.Error("expected non-zero RSS for the test process")
	}
	if s.DiskFree == 0 {
		t.Error("expected free space for temp dir")
	}
	if c.Last() != s {
		t.Error("Last() does not return the latest snapshot")
	}
	if len(s.Fields()) != 6 {
		t.Errorf("Fields() = %d fields, want 6", len(s.Fields()))
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	c := NewCollector(time.Second, t.TempDir(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
