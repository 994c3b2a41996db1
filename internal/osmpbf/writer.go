// Package osmpbf reads OSM PBF files through github.com/paulmach/osm and
// writes them with its own block encoder.
package osmpbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/paulmach/osm"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// MaxBlockEntities bounds the number of elements per primitive block.
	MaxBlockEntities = 8000

	granularity     = 100
	dateGranularity = 1000
)

type blockKind int

const (
	kindNone blockKind = iota
	kindNodes
	kindWays
	kindRelations
)

// Counts are the totals written so far.
type Counts struct {
	Nodes     int64
	Ways      int64
	Relations int64
	Blocks    int64
}

// Writer encodes elements into zlib-compressed blocks. Nodes are always
// written as DenseNodes. Elements are buffered per kind and a block is
// emitted when the kind changes or the block is full.
type Writer struct {
	w  io.Writer
	zw *zlib.Writer
	zb bytes.Buffer

	kind      blockKind
	nodes     []*osm.Node
	ways      []*osm.Way
	relations []*osm.Relation

	stringIDs map[string]int64
	strings   []string
	scratch   []byte

	counts Counts
}

// NewWriter writes the header blob to w and returns a writer for the
// elements that follow.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	zw, err := zlib.NewWriterLevel(nil, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	pw := &Writer{
		w:         w,
		zw:        zw,
		stringIDs: make(map[string]int64),
	}
	if err := pw.writeBlob(blobTypeHeader, h.marshal()); err != nil {
		return nil, fmt.Errorf("could not write header: %w", err)
	}
	return pw, nil
}

func (w *Writer) WriteNode(n *osm.Node) error {
	if err := w.switchKind(kindNodes); err != nil {
		return err
	}
	w.nodes = append(w.nodes, n)
	w.counts.Nodes++
	return w.flushIfFull(len(w.nodes))
}

func (w *Writer) WriteWay(way *osm.Way) error {
	if err := w.switchKind(kindWays); err != nil {
		return err
	}
	w.ways = append(w.ways, way)
	w.counts.Ways++
	return w.flushIfFull(len(w.ways))
}

func (w *Writer) WriteRelation(r *osm.Relation) error {
	if err := w.switchKind(kindRelations); err != nil {
		return err
	}
	w.relations = append(w.relations, r)
	w.counts.Relations++
	return w.flushIfFull(len(w.relations))
}

// WriteObject dispatches on the element type.
func (w *Writer) WriteObject(o osm.Object) error {
	switch v := o.(type) {
	case *osm.Node:
		return w.WriteNode(v)
	case *osm.Way:
		return w.WriteWay(v)
	case *osm.Relation:
		return w.WriteRelation(v)
	}
	return fmt.Errorf("unsupported element type %T", o)
}

func (w *Writer) Counts() Counts {
	return w.counts
}

// Close writes the last pending block. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	return w.flush()
}

func (w *Writer) switchKind(k blockKind) error {
	if w.kind != k && w.kind != kindNone {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.kind = k
	return nil
}

func (w *Writer) flushIfFull(n int) error {
	if n >= MaxBlockEntities {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	var group []byte
	var err error
	switch w.kind {
	case kindNone:
		return nil
	case kindNodes:
		if len(w.nodes) == 0 {
			return nil
		}
		group = appendBytesField(nil, groupDense, w.encodeDense(w.nodes))
		clear(w.nodes)
		w.nodes = w.nodes[:0]
	case kindWays:
		if len(w.ways) == 0 {
			return nil
		}
		for _, way := range w.ways {
			group = appendBytesField(group, groupWays, w.encodeWay(way))
		}
		clear(w.ways)
		w.ways = w.ways[:0]
	case kindRelations:
		if len(w.relations) == 0 {
			return nil
		}
		for _, r := range w.relations {
			var rel []byte
			if rel, err = w.encodeRelation(r); err != nil {
				return err
			}
			group = appendBytesField(group, groupRelations, rel)
		}
		clear(w.relations)
		w.relations = w.relations[:0]
	}

	var st []byte
	for _, s := range w.strings {
		st = appendStringField(st, stringTableS, s)
	}
	block := appendBytesField(nil, blockStringTable, st)
	block = appendBytesField(block, blockGroup, group)
	block = appendVarintField(block, blockGranularity, granularity)
	block = appendVarintField(block, blockDateGranularity, dateGranularity)

	clear(w.stringIDs)
	w.strings = w.strings[:0]

	if err := w.writeBlob(blobTypeData, block); err != nil {
		return err
	}
	w.counts.Blocks++
	return nil
}

// str returns the string table index of s. Index 0 is the empty string.
func (w *Writer) str(s string) int64 {
	if len(w.strings) == 0 {
		w.strings = append(w.strings, "")
		w.stringIDs[""] = 0
	}
	if id, ok := w.stringIDs[s]; ok {
		return id
	}
	id := int64(len(w.strings))
	w.strings = append(w.strings, s)
	w.stringIDs[s] = id
	return id
}

func scaleCoord(deg float64) int64 {
	return int64(math.Round(deg * 1e9 / granularity))
}

func timestamp(n interface{ Unix() int64 }) int64 {
	return n.Unix() * 1000 / dateGranularity
}

func (w *Writer) encodeDense(nodes []*osm.Node) []byte {
	count := len(nodes)
	ids := make([]int64, 0, count)
	lats := make([]int64, 0, count)
	lons := make([]int64, 0, count)
	versions := make([]int64, 0, count)
	times := make([]int64, 0, count)
	changesets := make([]int64, 0, count)
	uids := make([]int64, 0, count)
	userSIDs := make([]int64, 0, count)
	visible := make([]bool, 0, count)
	var keysVals []int64

	for _, n := range nodes {
		ids = append(ids, int64(n.ID))
		lats = append(lats, scaleCoord(n.Lat))
		lons = append(lons, scaleCoord(n.Lon))
		versions = append(versions, int64(n.Version))
		times = append(times, timestamp(n.Timestamp))
		changesets = append(changesets, int64(n.ChangesetID))
		uids = append(uids, int64(n.UserID))
		userSIDs = append(userSIDs, w.str(n.User))
		visible = append(visible, n.Visible)
		for _, t := range n.Tags {
			keysVals = append(keysVals, w.str(t.Key), w.str(t.Value))
		}
		keysVals = append(keysVals, 0)
	}

	var info []byte
	info = appendPacked(info, infoVersion, &w.scratch, packInt64(versions))
	info = appendPacked(info, infoTimestamp, &w.scratch, packSint64(deltas(times)))
	info = appendPacked(info, infoChangeset, &w.scratch, packSint64(deltas(changesets)))
	info = appendPacked(info, infoUID, &w.scratch, packSint64(deltas(uids)))
	info = appendPacked(info, infoUserSID, &w.scratch, packSint64(deltas(userSIDs)))
	info = appendPacked(info, infoVisible, &w.scratch, packBool(visible))

	var dense []byte
	dense = appendPacked(dense, denseID, &w.scratch, packSint64(deltas(ids)))
	dense = appendBytesField(dense, denseInfo, info)
	dense = appendPacked(dense, denseLat, &w.scratch, packSint64(deltas(lats)))
	dense = appendPacked(dense, denseLon, &w.scratch, packSint64(deltas(lons)))
	dense = appendPacked(dense, denseKeysVals, &w.scratch, packInt64(keysVals))
	return dense
}

func (w *Writer) encodeInfo(version int, ts interface{ Unix() int64 }, changeset, uid int64, user string, visible bool) []byte {
	var info []byte
	info = appendVarintField(info, infoVersion, uint64(int64(version)))
	info = appendVarintField(info, infoTimestamp, uint64(timestamp(ts)))
	info = appendVarintField(info, infoChangeset, uint64(changeset))
	info = appendVarintField(info, infoUID, uint64(uid))
	info = appendVarintField(info, infoUserSID, uint64(w.str(user)))
	info = appendVarintField(info, infoVisible, protowire.EncodeBool(visible))
	return info
}

func (w *Writer) encodeTags(b []byte, keysNum, valsNum protowire.Number, tags osm.Tags) []byte {
	if len(tags) == 0 {
		return b
	}
	keys := make([]int64, len(tags))
	vals := make([]int64, len(tags))
	for i, t := range tags {
		keys[i] = w.str(t.Key)
		vals[i] = w.str(t.Value)
	}
	b = appendPacked(b, keysNum, &w.scratch, packInt64(keys))
	return appendPacked(b, valsNum, &w.scratch, packInt64(vals))
}

func (w *Writer) encodeWay(way *osm.Way) []byte {
	var b []byte
	b = appendVarintField(b, wayID, uint64(way.ID))
	b = w.encodeTags(b, wayKeys, wayVals, way.Tags)
	b = appendBytesField(b, wayInfo, w.encodeInfo(way.Version, way.Timestamp, int64(way.ChangesetID), int64(way.UserID), way.User, way.Visible))

	refs := make([]int64, len(way.Nodes))
	for i, n := range way.Nodes {
		refs[i] = int64(n.ID)
	}
	return appendPacked(b, wayRefs, &w.scratch, packSint64(deltas(refs)))
}

func memberType(t osm.Type) (int64, error) {
	switch t {
	case osm.TypeNode:
		return 0, nil
	case osm.TypeWay:
		return 1, nil
	case osm.TypeRelation:
		return 2, nil
	}
	return 0, fmt.Errorf("unsupported member type %q", t)
}

func (w *Writer) encodeRelation(r *osm.Relation) ([]byte, error) {
	var b []byte
	b = appendVarintField(b, relID, uint64(r.ID))
	b = w.encodeTags(b, relKeys, relVals, r.Tags)
	b = appendBytesField(b, relInfo, w.encodeInfo(r.Version, r.Timestamp, int64(r.ChangesetID), int64(r.UserID), r.User, r.Visible))

	roles := make([]int64, len(r.Members))
	ids := make([]int64, len(r.Members))
	types := make([]int64, len(r.Members))
	for i, m := range r.Members {
		t, err := memberType(m.Type)
		if err != nil {
			return nil, fmt.Errorf("relation %d: %w", r.ID, err)
		}
		roles[i] = w.str(m.Role)
		ids[i] = m.Ref
		types[i] = t
	}
	b = appendPacked(b, relRolesSID, &w.scratch, packInt64(roles))
	b = appendPacked(b, relMemIDs, &w.scratch, packSint64(deltas(ids)))
	b = appendPacked(b, relTypes, &w.scratch, packInt64(types))
	return b, nil
}

func (w *Writer) writeBlob(typ string, raw []byte) error {
	w.zb.Reset()
	w.zw.Reset(&w.zb)
	if _, err := w.zw.Write(raw); err != nil {
		return fmt.Errorf("could not compress blob: %w", err)
	}
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("could not compress blob: %w", err)
	}

	var blob []byte
	blob = appendVarintField(blob, blobRawSize, uint64(len(raw)))
	blob = appendBytesField(blob, blobZlibData, w.zb.Bytes())

	var hdr []byte
	hdr = appendStringField(hdr, blobHeaderType, typ)
	hdr = appendVarintField(hdr, blobHeaderDatasize, uint64(len(blob)))

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(hdr)))
	if _, err := w.w.Write(size[:]); err != nil {
		return fmt.Errorf("could not write header size: %w", err)
	}
	if _, err := w.w.Write(hdr); err != nil {
		return fmt.Errorf("could not write blob header: %w", err)
	}
	if _, err := w.w.Write(blob); err != nil {
		return fmt.Errorf("could not write blob data: %w", err)
	}
	return nil
}
