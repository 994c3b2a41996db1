package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/config"
	"github.com/wegman-software/osm-admin/internal/dedup"
	"github.com/wegman-software/osm-admin/internal/dump"
	"github.com/wegman-software/osm-admin/internal/logger"
	"github.com/wegman-software/osm-admin/internal/osmpbf"
	"github.com/wegman-software/osm-admin/internal/pg"
	"github.com/wegman-software/osm-admin/internal/record"
	"github.com/wegman-software/osm-admin/internal/schema"
	"github.com/wegman-software/osm-admin/internal/tile"
)

// unknownUser names elements that carry a user id but no display name.
const unknownUser = "unknown-by-osm-admin"

// Synthesized changesets span the whole world.
var (
	worldMinLat int32 = -900000000
	worldMaxLat int32 = 900000000
	worldMinLon int32 = -1800000000
	worldMaxLon int32 = 1800000000
)

// Importer converts a PBF file into a directory dump laid out by a
// template toc.
//
// A pass that fails leaves a partially written dump behind; callers must
// discard the output directory.
type Importer struct {
	cfg *config.Config
	log *zap.Logger
	now func() time.Time
}

func NewImporter(cfg *config.Config, log *zap.Logger) *Importer {
	return &Importer{cfg: cfg, log: logger.Or(log), now: time.Now}
}

// Run executes the import pass.
func (im *Importer) Run(ctx context.Context) (*ImportStats, error) {
	start := time.Now()
	cfg, log := im.cfg, im.log

	archive, err := dump.CreateFromTemplate(cfg.TemplateDir, cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	log.Info("Created dump from template",
		zap.String("template", cfg.TemplateDir),
		zap.String("output", cfg.OutputDir),
		zap.Int("tables", archive.Len()))

	stopMetrics := startMetrics(ctx, cfg, cfg.OutputDir, log)
	defer stopMetrics()

	out, err := openSinks(archive)
	if err != nil {
		return nil, err
	}
	defer out.close()

	users, err := dedup.OpenUsers(cfg.TempDir, cfg.IndexBuffer)
	if err != nil {
		return nil, err
	}
	defer users.Close()
	changesets, err := dedup.OpenChangesets(cfg.TempDir, cfg.IndexBuffer)
	if err != nil {
		return nil, err
	}
	defer changesets.Close()

	in, err := osmpbf.Open(ctx, cfg.InputFile, cfg.Jobs, cfg.Progress)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	if h, err := in.Header(); err != nil {
		log.Warn("Could not read PBF header", zap.String("file", cfg.InputFile), zap.Error(err))
	} else {
		log.Info("Input PBF",
			zap.String("file", cfg.InputFile),
			zap.String("writing_program", h.WritingProgram),
			zap.Strings("required_features", h.RequiredFeatures))
	}

	p := &importPass{
		out:        out,
		users:      users,
		changesets: changesets,
		log:        log,
		threshold:  cfg.FlushThreshold,
		progress:   newPassProgress("import", in.Size()),
		in:         in,
	}
	log.Info("Started writing table data files")
	for in.Next() {
		if err := p.write(in.Value()); err != nil {
			return nil, err
		}
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	if err := out.flush(); err != nil {
		return nil, err
	}

	stats := &ImportStats{Nodes: p.nodes, Ways: p.ways, Relations: p.relations}
	now := im.now().UTC()
	if stats.Changesets, err = writeChangesets(out, changesets, now); err != nil {
		return nil, err
	}
	if stats.Users, err = writeUsers(out, users, now); err != nil {
		return nil, err
	}

	stats.Rows = out.rows()
	if err := out.close(); err != nil {
		return nil, err
	}
	for _, t := range schema.ImportTables {
		log.Debug("Wrote table", zap.String("table", string(t)), zap.String("rows", humanize.Comma(stats.Rows[t])))
	}
	log.Info("Finished writing table data files")

	if cfg.Restore {
		if err := pg.Restore(ctx, pg.FromConfig(cfg), cfg.Jobs, cfg.OutputDir, log); err != nil {
			return nil, err
		}
	}

	stats.DumpBytes, err = diskUsage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to measure dump: %w", err)
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

// importPass writes the rows implied by each element of one scan.
type importPass struct {
	out        *sinks
	users      *dedup.Users
	changesets *dedup.Changesets
	log        *zap.Logger
	threshold  int64
	progress   *passProgress
	in         *osmpbf.Reader

	nodes, ways, relations int64
}

func (p *importPass) write(o osm.Object) error {
	var count *int64
	var kind string
	var err error
	switch e := o.(type) {
	case *osm.Node:
		err = p.writeNode(e)
		count, kind = &p.nodes, "nodes"
	case *osm.Way:
		err = p.writeWay(e)
		count, kind = &p.ways, "ways"
	case *osm.Relation:
		err = p.writeRelation(e)
		count, kind = &p.relations, "relations"
	default:
		return nil
	}
	if err != nil {
		return err
	}

	*count++
	if *count%p.threshold == 0 {
		if err := p.out.flush(); err != nil {
			return err
		}
		total := p.nodes + p.ways + p.relations
		p.log.Info(fmt.Sprintf("Wrote %d %s", *count, kind), p.progress.fields(total, p.in.ScannedBytes())...)
	}
	return nil
}

func (p *importPass) remember(uid osm.UserID, user string, changeset osm.ChangesetID) error {
	if user == "" {
		user = unknownUser
	}
	if err := p.users.Put(int64(uid), user); err != nil {
		return err
	}
	return p.changesets.Put(int64(changeset), int64(uid))
}

func scaleDegrees(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}

func (p *importPass) writeNode(n *osm.Node) error {
	if err := p.remember(n.UserID, n.User, n.ChangesetID); err != nil {
		return err
	}

	rec := record.Node{
		NodeID:      int64(n.ID),
		Latitude:    scaleDegrees(n.Lat),
		Longitude:   scaleDegrees(n.Lon),
		ChangesetID: int64(n.ChangesetID),
		Visible:     n.Visible,
		Timestamp:   n.Timestamp,
		Tile:        tile.For(n.Lat, n.Lon),
		Version:     int64(n.Version),
	}
	if err := p.out.currentNodes.write(rec); err != nil {
		return err
	}
	if err := p.out.nodes.write(rec); err != nil {
		return err
	}

	for _, t := range n.Tags {
		if err := p.out.currentNodeTags.write(record.Tag{OwnerID: rec.NodeID, K: t.Key, V: t.Value}); err != nil {
			return err
		}
		if err := p.out.nodeTags.write(record.NodeTag{NodeID: rec.NodeID, Version: rec.Version, K: t.Key, V: t.Value}); err != nil {
			return err
		}
	}
	return nil
}

func (p *importPass) writeWay(w *osm.Way) error {
	if err := p.remember(w.UserID, w.User, w.ChangesetID); err != nil {
		return err
	}

	rec := record.Way{
		WayID:       int64(w.ID),
		ChangesetID: int64(w.ChangesetID),
		Timestamp:   w.Timestamp,
		Version:     int64(w.Version),
		Visible:     w.Visible,
	}
	if err := p.out.currentWays.write(rec); err != nil {
		return err
	}
	if err := p.out.ways.write(rec); err != nil {
		return err
	}

	for i, wn := range w.Nodes {
		ref := record.WayNode{
			WayID:      rec.WayID,
			NodeID:     int64(wn.ID),
			Version:    rec.Version,
			SequenceID: int64(i + 1),
		}
		if err := p.out.currentWayNodes.write(ref); err != nil {
			return err
		}
		if err := p.out.wayNodes.write(ref); err != nil {
			return err
		}
	}

	for _, t := range w.Tags {
		if err := p.out.currentWayTags.write(record.Tag{OwnerID: rec.WayID, K: t.Key, V: t.Value}); err != nil {
			return err
		}
		if err := p.out.wayTags.write(record.WayTag{WayID: rec.WayID, Version: rec.Version, K: t.Key, V: t.Value}); err != nil {
			return err
		}
	}
	return nil
}

func (p *importPass) writeRelation(r *osm.Relation) error {
	if err := p.remember(r.UserID, r.User, r.ChangesetID); err != nil {
		return err
	}

	rec := record.Relation{
		RelationID:  int64(r.ID),
		ChangesetID: int64(r.ChangesetID),
		Timestamp:   r.Timestamp,
		Version:     int64(r.Version),
		Visible:     r.Visible,
	}
	if err := p.out.currentRelations.write(rec); err != nil {
		return err
	}
	if err := p.out.relations.write(rec); err != nil {
		return err
	}

	for i, m := range r.Members {
		mt, err := memberType(m.Type)
		if err != nil {
			return fmt.Errorf("relation %d: %w", r.ID, err)
		}
		member := record.RelationMember{
			RelationID: rec.RelationID,
			MemberType: mt,
			MemberID:   m.Ref,
			MemberRole: m.Role,
			Version:    rec.Version,
			SequenceID: int64(i + 1),
		}
		if err := p.out.currentRelationMembers.write(member); err != nil {
			return err
		}
		if err := p.out.relationMembers.write(member); err != nil {
			return err
		}
	}

	for _, t := range r.Tags {
		if err := p.out.currentRelationTags.write(record.Tag{OwnerID: rec.RelationID, K: t.Key, V: t.Value}); err != nil {
			return err
		}
		if err := p.out.relationTags.write(record.RelationTag{RelationID: rec.RelationID, Version: rec.Version, K: t.Key, V: t.Value}); err != nil {
			return err
		}
	}
	return nil
}

func memberType(t osm.Type) (record.MemberType, error) {
	switch t {
	case osm.TypeNode:
		return record.MemberNode, nil
	case osm.TypeWay:
		return record.MemberWay, nil
	case osm.TypeRelation:
		return record.MemberRelation, nil
	}
	return 0, fmt.Errorf("unsupported member type %q", t)
}

// writeChangesets emits one world-sized changeset per distinct changeset id
// together with its provenance tags.
func writeChangesets(out *sinks, changesets *dedup.Changesets, now time.Time) (int64, error) {
	createdBy := programName()
	return changesets.Range(func(id, userID int64) error {
		c := record.Changeset{
			ID:        id,
			UserID:    userID,
			CreatedAt: now,
			MinLat:    &worldMinLat,
			MaxLat:    &worldMaxLat,
			MinLon:    &worldMinLon,
			MaxLon:    &worldMaxLon,
			ClosedAt:  now,
		}
		if err := out.changesets.write(c); err != nil {
			return err
		}
		if err := out.changesetTags.write(record.Tag{OwnerID: id, K: "created_by", V: createdBy}); err != nil {
			return err
		}
		return out.changesetTags.write(record.Tag{OwnerID: id, K: "replication", V: "true"})
	})
}

// writeUsers emits a placeholder account per distinct user id.
func writeUsers(out *sinks, users *dedup.Users, now time.Time) (int64, error) {
	var (
		home     = 0.0
		homeZoom = int16(3)
		salt     = "00000000"
	)
	return users.Range(func(id int64, name string) error {
		u := record.User{
			Email:             fmt.Sprintf("osm-admin-user-%d@example.com", id),
			ID:                id,
			PassCrypt:         "00000000000000000000000000000000",
			CreationTime:      now,
			DisplayName:       name,
			DataPublic:        true,
			Description:       name,
			HomeLat:           &home,
			HomeLon:           &home,
			HomeZoom:          &homeZoom,
			PassSalt:          &salt,
			Status:            record.UserPending,
			DescriptionFormat: record.FormatMarkdown,
		}
		return out.users.write(u)
	})
}
