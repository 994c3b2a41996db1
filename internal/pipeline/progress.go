package pipeline

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// passProgress renders the periodic progress line of a pass. size is the
// input size in bytes, zero when the pass has no single input to measure.
type passProgress struct {
	stage string
	size  int64
	start time.Time
}

func newPassProgress(stage string, size int64) *passProgress {
	return &passProgress{stage: stage, size: size, start: time.Now()}
}

// fields describes the pass after elements were written and pos bytes of
// input were consumed.
func (p *passProgress) fields(elements, pos int64) []zap.Field {
	return p.fieldsAt(time.Since(p.start), elements, pos)
}

func (p *passProgress) fieldsAt(elapsed time.Duration, elements, pos int64) []zap.Field {
	fields := []zap.Field{
		zap.String("stage", p.stage),
		zap.String("elements", humanize.Comma(elements)),
		zap.Duration("elapsed", elapsed.Round(time.Second)),
	}
	secs := elapsed.Seconds()
	if secs > 0 {
		fields = append(fields, zap.String("rate", humanize.SIWithDigits(float64(elements)/secs, 1, "/s")))
	}
	if p.size <= 0 || pos <= 0 {
		return fields
	}

	done := float64(pos) / float64(p.size)
	fields = append(fields, zap.String("percent", fmt.Sprintf("%.1f%%", done*100)))
	if done < 1 && secs > 0 {
		eta := time.Duration(secs * (1 - done) / done * float64(time.Second))
		fields = append(fields, zap.Duration("eta", eta.Round(time.Second)))
	}
	return fields
}
