package pipeline

import (
	"errors"
	"fmt"

	"github.com/wegman-software/osm-admin/internal/dump"
	"github.com/wegman-software/osm-admin/internal/record"
	"github.com/wegman-software/osm-admin/internal/schema"
)

type encoder[F any] interface {
	Encode(off F, row record.Row)
}

// sink writes one record type into one table file, reusing a single row.
type sink[F any] struct {
	w   *dump.Writer
	off F
	row record.Row
}

func openSink[F any](a *dump.Archive, table schema.Table, fields func(schema.Table, []string) (F, error)) (*sink[F], error) {
	def, err := a.Table(table)
	if err != nil {
		return nil, err
	}
	off, err := fields(table, def.Columns)
	if err != nil {
		return nil, err
	}
	w, err := dump.NewWriter(def)
	if err != nil {
		return nil, err
	}
	return &sink[F]{w: w, off: off, row: w.NewRow()}, nil
}

func (s *sink[F]) write(e encoder[F]) error {
	s.row.Reset()
	e.Encode(s.off, s.row)
	return s.w.WriteRow(s.row)
}

// sinks holds a writer for every table an import produces.
type sinks struct {
	currentNodes, nodes *sink[schema.NodeFields]

	currentWays, ways           *sink[schema.EntityFields]
	currentRelations, relations *sink[schema.EntityFields]

	currentNodeTags, nodeTags         *sink[schema.TagFields]
	currentWayTags, wayTags           *sink[schema.TagFields]
	currentRelationTags, relationTags *sink[schema.TagFields]
	changesetTags                     *sink[schema.TagFields]

	currentWayNodes, wayNodes *sink[schema.WayNodeFields]

	currentRelationMembers, relationMembers *sink[schema.RelationMemberFields]

	changesets *sink[schema.ChangesetFields]
	users      *sink[schema.UserFields]

	all []*dump.Writer
}

func openSinks(a *dump.Archive) (*sinks, error) {
	s := &sinks{}
	var errs []error

	node := func(t schema.Table) *sink[schema.NodeFields] {
		k, err := openSink(a, t, schema.NewNodeFields)
		return track(s, k, err, &errs)
	}
	entity := func(t schema.Table) *sink[schema.EntityFields] {
		k, err := openSink(a, t, schema.NewEntityFields)
		return track(s, k, err, &errs)
	}
	tag := func(t schema.Table) *sink[schema.TagFields] {
		k, err := openSink(a, t, schema.NewTagFields)
		return track(s, k, err, &errs)
	}
	wayNode := func(t schema.Table) *sink[schema.WayNodeFields] {
		k, err := openSink(a, t, schema.NewWayNodeFields)
		return track(s, k, err, &errs)
	}
	member := func(t schema.Table) *sink[schema.RelationMemberFields] {
		k, err := openSink(a, t, schema.NewRelationMemberFields)
		return track(s, k, err, &errs)
	}

	s.currentNodes, s.nodes = node(schema.CurrentNodes), node(schema.Nodes)
	s.currentWays, s.ways = entity(schema.CurrentWays), entity(schema.Ways)
	s.currentRelations, s.relations = entity(schema.CurrentRelations), entity(schema.Relations)
	s.currentNodeTags, s.nodeTags = tag(schema.CurrentNodeTags), tag(schema.NodeTags)
	s.currentWayTags, s.wayTags = tag(schema.CurrentWayTags), tag(schema.WayTags)
	s.currentRelationTags, s.relationTags = tag(schema.CurrentRelationTags), tag(schema.RelationTags)
	s.changesetTags = tag(schema.ChangesetTags)
	s.currentWayNodes, s.wayNodes = wayNode(schema.CurrentWayNodes), wayNode(schema.WayNodes)
	s.currentRelationMembers, s.relationMembers = member(schema.CurrentRelationMembers), member(schema.RelationMembers)

	changesets, err := openSink(a, schema.Changesets, schema.NewChangesetFields)
	s.changesets = track(s, changesets, err, &errs)
	users, err := openSink(a, schema.Users, schema.NewUserFields)
	s.users = track(s, users, err, &errs)

	if len(errs) > 0 {
		s.close()
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func track[F any](s *sinks, k *sink[F], err error, errs *[]error) *sink[F] {
	if err != nil {
		*errs = append(*errs, err)
		return nil
	}
	s.all = append(s.all, k.w)
	return k
}

func (s *sinks) flush() error {
	for _, w := range s.all {
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush %s: %w", w.Def().Name, err)
		}
	}
	return nil
}

// close writes the end-of-data line to every table and closes the files.
func (s *sinks) close() error {
	var errs []error
	for _, w := range s.all {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.all = nil
	return errors.Join(errs...)
}

// rows returns the number of rows written per table.
func (s *sinks) rows() map[schema.Table]int64 {
	m := make(map[schema.Table]int64, len(s.all))
	for _, w := range s.all {
		m[w.Def().Name] = w.Rows()
	}
	return m
}
