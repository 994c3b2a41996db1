package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osm-admin/internal/bbox"
	"github.com/wegman-software/osm-admin/internal/config"
	"github.com/wegman-software/osm-admin/internal/dedup"
	"github.com/wegman-software/osm-admin/internal/dump"
	"github.com/wegman-software/osm-admin/internal/join"
	"github.com/wegman-software/osm-admin/internal/logger"
	"github.com/wegman-software/osm-admin/internal/osmpbf"
	"github.com/wegman-software/osm-admin/internal/pg"
	"github.com/wegman-software/osm-admin/internal/record"
	"github.com/wegman-software/osm-admin/internal/replication"
	"github.com/wegman-software/osm-admin/internal/schema"
)

// Exporter converts a directory dump into a PBF file.
type Exporter struct {
	cfg *config.Config
	log *zap.Logger
}

func NewExporter(cfg *config.Config, log *zap.Logger) *Exporter {
	return &Exporter{cfg: cfg, log: logger.Or(log)}
}

// Run executes the export pass.
func (ex *Exporter) Run(ctx context.Context) (*ExportStats, error) {
	start := time.Now()
	cfg, log := ex.cfg, ex.log

	if cfg.FromDB {
		snap, err := pg.Dump(ctx, pg.FromConfig(cfg), cfg.Jobs, cfg.DumpDir, log)
		if err != nil {
			return nil, err
		}
		log.Info("Dumped database",
			zap.String("dir", snap.Dir),
			zap.Int64("txid", snap.TxID),
			zap.Time("timestamp", snap.Timestamp))
	}

	archive, err := dump.Open(cfg.DumpDir)
	if err != nil {
		return nil, err
	}

	stopMetrics := startMetrics(ctx, cfg, filepath.Dir(cfg.OutputFile), log)
	defer stopMetrics()

	stats := &ExportStats{}
	lk, err := ex.loadLookups(ctx, archive, stats)
	if err != nil {
		return nil, err
	}
	defer lk.close()

	box, err := ex.boundingBox(archive)
	if err != nil {
		return nil, err
	}
	repl, err := replication.Resolve(cfg.ReplicationTimestamp, cfg.ReplicationSequence, cfg.ReplicationBaseURL, cfg.DumpDir, log)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	buf := bufio.NewWriterSize(f, 4<<20)

	w, err := osmpbf.NewWriter(buf, header(box, repl))
	if err != nil {
		return nil, err
	}

	pass := &exportPass{
		archive:  archive,
		w:        w,
		lk:       lk,
		stats:    stats,
		log:      log,
		opts:     ex.joinOptions(),
		every:    cfg.FlushThreshold,
		progress: newPassProgress("export", 0),
	}
	for _, step := range []func() error{pass.nodes, pass.ways, pass.relations} {
		if err := step(); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := buf.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close output file: %w", err)
	}

	stats.Blocks = w.Counts().Blocks
	stats.UnknownChangesets = lk.unknown
	if fi, err := os.Stat(cfg.OutputFile); err == nil {
		stats.PBFBytes = fi.Size()
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

func (ex *Exporter) joinOptions() []join.Option {
	if ex.cfg.CheckOrder {
		return []join.Option{join.WithOrderCheck()}
	}
	return nil
}

// loadLookups indexes the users and changesets tables, one goroutine each.
func (ex *Exporter) loadLookups(ctx context.Context, a *dump.Archive, stats *ExportStats) (*lookups, error) {
	users, err := dedup.OpenUsers(ex.cfg.TempDir, ex.cfg.IndexBuffer)
	if err != nil {
		return nil, err
	}
	changesets, err := dedup.OpenChangesets(ex.cfg.TempDir, ex.cfg.IndexBuffer)
	if err != nil {
		users.Close()
		return nil, err
	}
	lk := &lookups{users: users, changesets: changesets}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := dump.OpenTable[record.User](a, schema.Users, ex.log)
		if err != nil {
			return err
		}
		defer r.Close()
		for r.Next() {
			if err := gctx.Err(); err != nil {
				return err
			}
			u := r.Value()
			if err := users.Put(u.ID, u.DisplayName); err != nil {
				return err
			}
			stats.Users++
		}
		return r.Err()
	})
	g.Go(func() error {
		r, err := dump.OpenTable[record.Changeset](a, schema.Changesets, ex.log)
		if err != nil {
			return err
		}
		defer r.Close()
		for r.Next() {
			if err := gctx.Err(); err != nil {
				return err
			}
			c := r.Value()
			if err := changesets.Put(c.ID, c.UserID); err != nil {
				return err
			}
			stats.Changesets++
		}
		return r.Err()
	})
	if err := g.Wait(); err != nil {
		lk.close()
		return nil, fmt.Errorf("failed to index users and changesets: %w", err)
	}

	ex.log.Info("Indexed users and changesets",
		zap.Int64("users", stats.Users),
		zap.Int64("changesets", stats.Changesets))
	return lk, nil
}

// boundingBox returns the configured box, the extent of the visible nodes
// when calculation is requested, or nil.
// boundingBox resolves the header box. A calculated box takes precedence
// over an explicit one.
func (ex *Exporter) boundingBox(a *dump.Archive) (*bbox.Box, error) {
	switch {
	case ex.cfg.CalcBBox:
		if ex.cfg.BBox != nil {
			ex.log.Warn("Ignoring explicit bounding box, calculating it from the nodes",
				zap.Stringer("bbox", bbox.FromConfig(*ex.cfg.BBox)))
		}
		nodes, err := dump.OpenTable[record.Node](a, schema.Nodes, ex.log)
		if err != nil {
			return nil, err
		}
		defer nodes.Close()
		b, scanned, err := bbox.Calculate[record.Node](nodes, func(n record.Node) bbox.Point {
			return bbox.Point{IsNode: true, Visible: n.Visible, Lat: n.Latitude, Lon: n.Longitude}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to calculate bounding box: %w", err)
		}
		if b == nil {
			ex.log.Warn("No visible nodes, header has no bounding box", zap.Int64("scanned", scanned))
			return nil, nil
		}
		ex.log.Info("Calculated bounding box", zap.Stringer("bbox", b), zap.Int64("scanned", scanned))
		return b, nil

	case ex.cfg.BBox != nil:
		b := bbox.FromConfig(*ex.cfg.BBox)
		ex.log.Info("Using bounding box", zap.Stringer("bbox", b))
		return &b, nil
	}
	return nil, nil
}

func header(box *bbox.Box, repl replication.Params) osmpbf.Header {
	h := osmpbf.Header{
		RequiredFeatures:     []string{osmpbf.FeatureSchema, osmpbf.FeatureDenseNodes},
		OptionalFeatures:     []string{osmpbf.FeatureMetadata, osmpbf.FeatureHistorical},
		WritingProgram:       programName(),
		ReplicationTimestamp: repl.Timestamp,
		ReplicationSequence:  repl.Sequence,
		ReplicationBaseURL:   repl.BaseURL,
	}
	if box != nil {
		// degrees * 1e7 to nanodegrees
		h.BBox = &osmpbf.BBox{
			Left:   int64(box.MinLon) * 100,
			Right:  int64(box.MaxLon) * 100,
			Top:    int64(box.MaxLat) * 100,
			Bottom: int64(box.MinLat) * 100,
		}
	}
	return h
}

// lookups resolves the author of an element through its changeset.
type lookups struct {
	users      *dedup.Users
	changesets *dedup.Changesets

	last    int64
	lastUID int64
	lastSet bool
	name    string
	unknown int64
}

func (l *lookups) resolve(changeset int64) (osm.UserID, string, error) {
	if l.lastSet && l.last == changeset {
		return osm.UserID(l.lastUID), l.name, nil
	}

	uid, ok, err := l.changesets.Get(changeset)
	if err != nil {
		return 0, "", err
	}
	var name string
	if ok {
		name, _, err = l.users.Get(uid)
		if err != nil {
			return 0, "", err
		}
	} else {
		l.unknown++
	}

	l.last, l.lastUID, l.name, l.lastSet = changeset, uid, name, true
	return osm.UserID(uid), name, nil
}

func (l *lookups) close() {
	l.users.Close()
	l.changesets.Close()
}

// exportPass turns joined table rows into PBF elements.
type exportPass struct {
	archive  *dump.Archive
	w        *osmpbf.Writer
	lk       *lookups
	stats    *ExportStats
	log      *zap.Logger
	opts     []join.Option
	every    int64
	progress *passProgress
}

func (p *exportPass) report(count int64, kind string) {
	if count%p.every != 0 {
		return
	}
	total := p.stats.Nodes + p.stats.Ways + p.stats.Relations
	p.log.Info(fmt.Sprintf("Wrote %d %s", count, kind), p.progress.fields(total, 0)...)
}

func (p *exportPass) nodes() error {
	nodes, err := dump.OpenTable[record.Node](p.archive, schema.Nodes, p.log)
	if err != nil {
		return err
	}
	defer nodes.Close()
	tags, err := dump.OpenTable[record.NodeTag](p.archive, schema.NodeTags, p.log)
	if err != nil {
		return err
	}
	defer tags.Close()

	j := join.New[record.Node, record.NodeTag](nodes, nodeKey, tags, nodeTagKey, p.opts...)
	for j.Next() {
		v := j.Value()
		n := v.Parent
		uid, user, err := p.lk.resolve(n.ChangesetID)
		if err != nil {
			return err
		}
		err = p.w.WriteNode(&osm.Node{
			ID:          osm.NodeID(n.NodeID),
			Lat:         float64(n.Latitude) / 1e7,
			Lon:         float64(n.Longitude) / 1e7,
			User:        user,
			UserID:      uid,
			Visible:     n.Visible,
			Version:     int(n.Version),
			ChangesetID: osm.ChangesetID(n.ChangesetID),
			Timestamp:   n.Timestamp,
			Tags:        tagsOf(v.Children, func(t record.NodeTag) (string, string) { return t.K, t.V }),
		})
		if err != nil {
			return err
		}
		p.stats.Nodes++
		p.report(p.stats.Nodes, "nodes")
	}
	if err := j.Err(); err != nil {
		return fmt.Errorf("nodes: %w", err)
	}

	p.stats.Orphans += j.Orphans()
	p.stats.SkippedRows += nodes.Skipped() + tags.Skipped()
	return nil
}

func (p *exportPass) ways() error {
	ways, err := dump.OpenTable[record.Way](p.archive, schema.Ways, p.log)
	if err != nil {
		return err
	}
	defer ways.Close()
	refs, err := dump.OpenTable[record.WayNode](p.archive, schema.WayNodes, p.log)
	if err != nil {
		return err
	}
	defer refs.Close()
	tags, err := dump.OpenTable[record.WayTag](p.archive, schema.WayTags, p.log)
	if err != nil {
		return err
	}
	defer tags.Close()

	withNodes := join.New[record.Way, record.WayNode](ways, wayKey, refs, wayNodeKey, p.opts...)
	j := join.New[join.Joined[record.Way, record.WayNode], record.WayTag](withNodes,
		func(w join.Joined[record.Way, record.WayNode]) join.Key { return wayKey(w.Parent) },
		tags, wayTagKey, p.opts...)
	for j.Next() {
		v := j.Value()
		w := v.Parent.Parent
		uid, user, err := p.lk.resolve(w.ChangesetID)
		if err != nil {
			return err
		}

		nodes := make(osm.WayNodes, len(v.Parent.Children))
		for i, ref := range v.Parent.Children {
			nodes[i] = osm.WayNode{ID: osm.NodeID(ref.NodeID)}
		}
		err = p.w.WriteWay(&osm.Way{
			ID:          osm.WayID(w.WayID),
			User:        user,
			UserID:      uid,
			Visible:     w.Visible,
			Version:     int(w.Version),
			ChangesetID: osm.ChangesetID(w.ChangesetID),
			Timestamp:   w.Timestamp,
			Nodes:       nodes,
			Tags:        tagsOf(v.Children, func(t record.WayTag) (string, string) { return t.K, t.V }),
		})
		if err != nil {
			return err
		}
		p.stats.Ways++
		p.report(p.stats.Ways, "ways")
	}
	if err := j.Err(); err != nil {
		return fmt.Errorf("ways: %w", err)
	}

	p.stats.Orphans += withNodes.Orphans() + j.Orphans()
	p.stats.SkippedRows += ways.Skipped() + refs.Skipped() + tags.Skipped()
	return nil
}

func (p *exportPass) relations() error {
	relations, err := dump.OpenTable[record.Relation](p.archive, schema.Relations, p.log)
	if err != nil {
		return err
	}
	defer relations.Close()
	members, err := dump.OpenTable[record.RelationMember](p.archive, schema.RelationMembers, p.log)
	if err != nil {
		return err
	}
	defer members.Close()
	tags, err := dump.OpenTable[record.RelationTag](p.archive, schema.RelationTags, p.log)
	if err != nil {
		return err
	}
	defer tags.Close()

	withMembers := join.New[record.Relation, record.RelationMember](relations, relationKey, members, memberKey, p.opts...)
	j := join.New[join.Joined[record.Relation, record.RelationMember], record.RelationTag](withMembers,
		func(r join.Joined[record.Relation, record.RelationMember]) join.Key { return relationKey(r.Parent) },
		tags, relationTagKey, p.opts...)
	for j.Next() {
		v := j.Value()
		r := v.Parent.Parent
		uid, user, err := p.lk.resolve(r.ChangesetID)
		if err != nil {
			return err
		}

		ms := make(osm.Members, len(v.Parent.Children))
		for i, m := range v.Parent.Children {
			ms[i] = osm.Member{Type: osmType(m.MemberType), Ref: m.MemberID, Role: m.MemberRole}
		}
		err = p.w.WriteRelation(&osm.Relation{
			ID:          osm.RelationID(r.RelationID),
			User:        user,
			UserID:      uid,
			Visible:     r.Visible,
			Version:     int(r.Version),
			ChangesetID: osm.ChangesetID(r.ChangesetID),
			Timestamp:   r.Timestamp,
			Members:     ms,
			Tags:        tagsOf(v.Children, func(t record.RelationTag) (string, string) { return t.K, t.V }),
		})
		if err != nil {
			return err
		}
		p.stats.Relations++
		p.report(p.stats.Relations, "relations")
	}
	if err := j.Err(); err != nil {
		return fmt.Errorf("relations: %w", err)
	}

	p.stats.Orphans += withMembers.Orphans() + j.Orphans()
	p.stats.SkippedRows += relations.Skipped() + members.Skipped() + tags.Skipped()
	return nil
}

func tagsOf[T any](rows []T, kv func(T) (string, string)) osm.Tags {
	if len(rows) == 0 {
		return nil
	}
	tags := make(osm.Tags, len(rows))
	for i, row := range rows {
		k, v := kv(row)
		tags[i] = osm.Tag{Key: k, Value: v}
	}
	return tags
}

func osmType(t record.MemberType) osm.Type {
	switch t {
	case record.MemberWay:
		return osm.TypeWay
	case record.MemberRelation:
		return osm.TypeRelation
	}
	return osm.TypeNode
}

func nodeKey(n record.Node) join.Key         { return join.Key{ID: n.NodeID, Version: n.Version} }
func nodeTagKey(t record.NodeTag) join.Key   { return join.Key{ID: t.NodeID, Version: t.Version} }
func wayKey(w record.Way) join.Key           { return join.Key{ID: w.WayID, Version: w.Version} }
func wayNodeKey(n record.WayNode) join.Key   { return join.Key{ID: n.WayID, Version: n.Version} }
func wayTagKey(t record.WayTag) join.Key     { return join.Key{ID: t.WayID, Version: t.Version} }
func relationKey(r record.Relation) join.Key { return join.Key{ID: r.RelationID, Version: r.Version} }
func memberKey(m record.RelationMember) join.Key {
	return join.Key{ID: m.RelationID, Version: m.Version}
}
func relationTagKey(t record.RelationTag) join.Key {
	return join.Key{ID: t.RelationID, Version: t.Version}
}
