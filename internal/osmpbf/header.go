package osmpbf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	scan "github.com/paulmach/osm/osmpbf"
)

const (
	blobTypeHeader = "OSMHeader"
	blobTypeData   = "OSMData"
)

// Feature names of the header block.
const (
	FeatureSchema     = "OsmSchema-V0.6"
	FeatureDenseNodes = "DenseNodes"
	FeatureMetadata   = "Has_Metadata"
	FeatureHistorical = "HistoricalInformation"
)

var errNoHeader = errors.New("PBF file does not start with a header block")

// BBox is a header bounding box in nanodegrees.
type BBox struct {
	Left, Right, Top, Bottom int64
}

// Header is the content of the OSMHeader blob.
type Header struct {
	BBox                 *BBox
	RequiredFeatures     []string
	OptionalFeatures     []string
	WritingProgram       string
	Source               string
	ReplicationTimestamp *time.Time
	ReplicationSequence  *int64
	ReplicationBaseURL   string
}

func (h Header) marshal() []byte {
	var b []byte
	if h.BBox != nil {
		var bb []byte
		bb = appendSint64Field(bb, bboxLeft, h.BBox.Left)
		bb = appendSint64Field(bb, bboxRight, h.BBox.Right)
		bb = appendSint64Field(bb, bboxTop, h.BBox.Top)
		bb = appendSint64Field(bb, bboxBottom, h.BBox.Bottom)
		b = appendBytesField(b, headerBBox, bb)
	}
	for _, f := range h.RequiredFeatures {
		b = appendStringField(b, headerRequiredFeatures, f)
	}
	for _, f := range h.OptionalFeatures {
		b = appendStringField(b, headerOptionalFeatures, f)
	}
	if h.WritingProgram != "" {
		b = appendStringField(b, headerWritingProgram, h.WritingProgram)
	}
	if h.Source != "" {
		b = appendStringField(b, headerSource, h.Source)
	}
	if h.ReplicationTimestamp != nil {
		b = appendVarintField(b, headerReplicationTime, uint64(h.ReplicationTimestamp.Unix()))
	}
	if h.ReplicationSequence != nil {
		b = appendVarintField(b, headerReplicationSequence, uint64(*h.ReplicationSequence))
	}
	if h.ReplicationBaseURL != "" {
		b = appendStringField(b, headerReplicationBaseURL, h.ReplicationBaseURL)
	}
	return b
}

// headerFrom converts a decoded header block. The decoder reports an absent
// sequence number as zero, so zero is treated as unset.
func headerFrom(sh *scan.Header) Header {
	h := Header{
		RequiredFeatures:   sh.RequiredFeatures,
		OptionalFeatures:   sh.OptionalFeatures,
		WritingProgram:     sh.WritingProgram,
		Source:             sh.Source,
		ReplicationBaseURL: sh.ReplicationBaseURL,
	}
	if b := sh.Bounds; b != nil {
		h.BBox = &BBox{
			Left:   nanodegrees(b.MinLon),
			Right:  nanodegrees(b.MaxLon),
			Top:    nanodegrees(b.MaxLat),
			Bottom: nanodegrees(b.MinLat),
		}
	}
	if !sh.ReplicationTimestamp.IsZero() {
		ts := sh.ReplicationTimestamp.UTC()
		h.ReplicationTimestamp = &ts
	}
	if sh.ReplicationSeqNum != 0 {
		seq := int64(sh.ReplicationSeqNum)
		h.ReplicationSequence = &seq
	}
	return h
}

func nanodegrees(deg float64) int64 {
	return int64(math.Round(deg * 1e9))
}

// ReadHeader reads the header block at the start of a PBF stream.
func ReadHeader(r io.Reader) (Header, error) {
	s := scan.New(context.Background(), r, 1)
	defer s.Close()
	sh, err := s.Header()
	if err != nil {
		return Header{}, fmt.Errorf("failed to read PBF header: %w", err)
	}
	if sh == nil {
		return Header{}, errNoHeader
	}
	return headerFrom(sh), nil
}
