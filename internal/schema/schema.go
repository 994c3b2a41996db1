// Package schema maps the columns declared for each apidb table to the
// offsets the record decoder and the table writers use.
package schema

import (
	"errors"
	"fmt"
)

// Table is the qualified name of an apidb table as it appears in the toc.
type Table string

const (
	Nodes           Table = "public.nodes"
	NodeTags        Table = "public.node_tags"
	Ways            Table = "public.ways"
	WayNodes        Table = "public.way_nodes"
	WayTags         Table = "public.way_tags"
	Relations       Table = "public.relations"
	RelationMembers Table = "public.relation_members"
	RelationTags    Table = "public.relation_tags"
	Changesets      Table = "public.changesets"
	ChangesetTags   Table = "public.changeset_tags"
	Users           Table = "public.users"

	CurrentNodes           Table = "public.current_nodes"
	CurrentNodeTags        Table = "public.current_node_tags"
	CurrentWays            Table = "public.current_ways"
	CurrentWayNodes        Table = "public.current_way_nodes"
	CurrentWayTags         Table = "public.current_way_tags"
	CurrentRelations       Table = "public.current_relations"
	CurrentRelationMembers Table = "public.current_relation_members"
	CurrentRelationTags    Table = "public.current_relation_tags"
)

// ImportTables lists every table the importer writes, in the order its
// summary reports them.
var ImportTables = []Table{
	Changesets, ChangesetTags,
	CurrentNodes, CurrentNodeTags, Nodes, NodeTags,
	CurrentWays, CurrentWayNodes, CurrentWayTags, Ways, WayNodes, WayTags,
	CurrentRelations, CurrentRelationMembers, CurrentRelationTags,
	Relations, RelationMembers, RelationTags,
	Users,
}

// ErrUnknownTable is returned for a table name that has no field mapping.
var ErrUnknownTable = errors.New("unknown table")

// MissingColumnError reports a required column absent from a table's
// declared column list.
type MissingColumnError struct {
	Table  Table
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %s: required column %q not declared", e.Table, e.Column)
}

// Absent marks an optional column the table does not carry.
const Absent = -1

// resolver looks columns up by name and keeps the first failure.
type resolver struct {
	table Table
	index map[string]int
	err   error
}

func newResolver(table Table, columns []string) *resolver {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}
	return &resolver{table: table, index: index}
}

func (r *resolver) col(name string) int {
	i, ok := r.index[name]
	if !ok {
		if r.err == nil {
			r.err = &MissingColumnError{Table: r.table, Column: name}
		}
		return Absent
	}
	return i
}

func (r *resolver) optional(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	return Absent
}
