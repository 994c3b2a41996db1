package osmpbf

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC)

func testHeader() Header {
	seq := int64(4711)
	rts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Header{
		BBox:                 &BBox{Left: -1_000_000_000, Right: 2_000_000_000, Top: 3_000_000_000, Bottom: -4_000_000_000},
		RequiredFeatures:     []string{FeatureSchema, FeatureDenseNodes},
		OptionalFeatures:     []string{FeatureMetadata, FeatureHistorical},
		WritingProgram:       "osm-admin test",
		ReplicationTimestamp: &rts,
		ReplicationSequence:  &seq,
		ReplicationBaseURL:   "https://planet.example.org/replication/minute",
	}
}

func writeFile(t *testing.T, objects ...osm.Object) (string, Counts) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.osm.pbf")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := NewWriter(f, testHeader())
	require.NoError(t, err)
	for _, o := range objects {
		require.NoError(t, w.WriteObject(o))
	}
	require.NoError(t, w.Close())
	return path, w.Counts()
}

func readAll(t *testing.T, path string) []osm.Object {
	t.Helper()
	r, err := Open(context.Background(), path, 2, false)
	require.NoError(t, err)
	defer r.Close()

	var out []osm.Object
	for r.Next() {
		out = append(out, r.Value())
	}
	require.NoError(t, r.Err())
	return out
}

func TestHeaderRoundTrip(t *testing.T) {
	path, _ := writeFile(t, &osm.Node{ID: 1, Version: 1, Visible: true, Timestamp: ts})

	r, err := Open(context.Background(), path, 1, false)
	require.NoError(t, err)
	defer r.Close()

	h, err := r.Header()
	require.NoError(t, err)
	want := testHeader()
	assert.Equal(t, want.BBox, h.BBox)
	assert.Equal(t, want.RequiredFeatures, h.RequiredFeatures)
	assert.Equal(t, want.OptionalFeatures, h.OptionalFeatures)
	assert.Equal(t, want.WritingProgram, h.WritingProgram)
	assert.Equal(t, *want.ReplicationSequence, *h.ReplicationSequence)
	assert.True(t, want.ReplicationTimestamp.Equal(*h.ReplicationTimestamp))
	assert.Equal(t, want.ReplicationBaseURL, h.ReplicationBaseURL)

	// the element scan continues after the header was read
	require.True(t, r.Next())
	assert.Equal(t, osm.NodeID(1), r.Value().(*osm.Node).ID)
	assert.False(t, r.Next())
	require.NoError(t, r.Err())
}

func TestHeaderWithoutOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, Header{RequiredFeatures: []string{FeatureSchema}})
	require.NoError(t, err)

	h, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Nil(t, h.BBox)
	assert.Nil(t, h.ReplicationSequence)
	assert.Nil(t, h.ReplicationTimestamp)
}

func TestWriteAndScan(t *testing.T) {
	node := &osm.Node{
		ID: 1, Lat: 52.5200066, Lon: 13.404954, Version: 3, Visible: true,
		ChangesetID: 77, UserID: 9, User: "alice", Timestamp: ts,
		Tags: osm.Tags{{Key: "amenity", Value: "cafe"}, {Key: "name", Value: "Tab\there"}},
	}
	deleted := &osm.Node{ID: 5, Version: 2, Visible: false, ChangesetID: 78, UserID: 10, User: "bob", Timestamp: ts}
	way := &osm.Way{
		ID: 10, Version: 1, Visible: true, ChangesetID: 77, UserID: 9, User: "alice", Timestamp: ts,
		Nodes: osm.WayNodes{{ID: 5}, {ID: 1}, {ID: 5}},
		Tags:  osm.Tags{{Key: "highway", Value: "residential"}},
	}
	rel := &osm.Relation{
		ID: 20, Version: 4, Visible: true, ChangesetID: 79, UserID: 11, User: "carol", Timestamp: ts,
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: 10, Role: "outer"},
			{Type: osm.TypeNode, Ref: 1, Role: ""},
			{Type: osm.TypeRelation, Ref: 21, Role: "subarea"},
		},
	}

	path, counts := writeFile(t, node, deleted, way, rel)
	assert.Equal(t, Counts{Nodes: 2, Ways: 1, Relations: 1, Blocks: 3}, counts)

	objects := readAll(t, path)
	require.Len(t, objects, 4)

	n := objects[0].(*osm.Node)
	assert.Equal(t, node.ID, n.ID)
	assert.InDelta(t, node.Lat, n.Lat, 1e-7)
	assert.InDelta(t, node.Lon, n.Lon, 1e-7)
	assert.Equal(t, node.Version, n.Version)
	assert.Equal(t, node.ChangesetID, n.ChangesetID)
	assert.Equal(t, node.UserID, n.UserID)
	assert.Equal(t, node.User, n.User)
	assert.True(t, n.Visible)
	assert.True(t, ts.Equal(n.Timestamp))
	assert.Equal(t, node.Tags, n.Tags)

	d := objects[1].(*osm.Node)
	assert.False(t, d.Visible)
	assert.Equal(t, "bob", d.User)

	w := objects[2].(*osm.Way)
	assert.Equal(t, way.ID, w.ID)
	assert.Equal(t, []osm.NodeID{5, 1, 5}, w.Nodes.NodeIDs())
	assert.Equal(t, way.Tags, w.Tags)
	assert.Equal(t, "alice", w.User)

	r := objects[3].(*osm.Relation)
	require.Len(t, r.Members, 3)
	for i, m := range rel.Members {
		assert.Equal(t, m.Type, r.Members[i].Type)
		assert.Equal(t, m.Ref, r.Members[i].Ref)
		assert.Equal(t, m.Role, r.Members[i].Role)
	}
	assert.Equal(t, 4, r.Version)
}

func TestBlocksAreBounded(t *testing.T) {
	var objects []osm.Object
	for i := 1; i <= MaxBlockEntities+1; i++ {
		objects = append(objects, &osm.Node{ID: osm.NodeID(i), Visible: true, Version: 1, Timestamp: ts})
	}
	path, counts := writeFile(t, objects...)
	assert.Equal(t, int64(2), counts.Blocks)
	assert.Len(t, readAll(t, path), MaxBlockEntities+1)
}

func TestUnsupportedMemberType(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{})
	require.NoError(t, err)
	require.NoError(t, w.WriteRelation(&osm.Relation{ID: 1, Members: osm.Members{{Type: osm.TypeChangeset, Ref: 1}}}))
	assert.Error(t, w.Close())
}
