package replication

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/logger"
)

// Source names where resolved replication parameters came from.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceDump     Source = "dump"
	SourceNone     Source = "none"
)

// Params are the osmosis replication fields of a PBF header. Nil fields are
// left out of the header.
type Params struct {
	Timestamp *time.Time
	Sequence  *int64
	BaseURL   string
	Source    Source
}

// Resolve picks explicitly supplied values when there are any, else the
// state file of dumpDir, else nothing. timestamp is in unix seconds.
func Resolve(timestamp, sequence *int64, baseURL, dumpDir string, log *zap.Logger) (Params, error) {
	log = logger.Or(log)
	p := Params{BaseURL: baseURL, Source: SourceNone}

	switch {
	case timestamp != nil || sequence != nil:
		p.Source = SourceExplicit
		if timestamp != nil {
			ts := time.Unix(*timestamp, 0).UTC()
			p.Timestamp = &ts
		}
		if sequence != nil {
			seq := *sequence
			p.Sequence = &seq
		}

	case dumpDir != "":
		state, err := ReadStateFile(filepath.Join(dumpDir, StateFile))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return p, fmt.Errorf("failed to read dump replication state: %w", err)
		}
		p.Source = SourceDump
		p.Timestamp = &state.Timestamp
		p.Sequence = &state.SequenceNumber
	}

	fields := []zap.Field{zap.String("source", string(p.Source))}
	if p.Timestamp != nil {
		fields = append(fields, zap.Time("timestamp", *p.Timestamp))
	}
	if p.Sequence != nil {
		fields = append(fields, zap.Int64("sequence", *p.Sequence))
	}
	if p.BaseURL != "" {
		fields = append(fields, zap.String("base_url", p.BaseURL))
	}
	log.Info("Replication parameters", fields...)
	return p, nil
}
