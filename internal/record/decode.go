package record

import (
	"fmt"

	"github.com/wegman-software/osm-admin/internal/schema"
)

// Decoder turns the tab-split values of one row into a record.
type Decoder func(values []string) (Record, error)

type registration struct {
	build func(columns []string) (Decoder, error)
	proto Record
}

var registry = map[schema.Table]registration{
	schema.Nodes:           {decodeNodes, Node{}},
	schema.NodeTags:        {decodeNodeTags, NodeTag{}},
	schema.Ways:            {decodeWays, Way{}},
	schema.WayNodes:        {decodeWayNodes, WayNode{}},
	schema.WayTags:         {decodeWayTags, WayTag{}},
	schema.Relations:       {decodeRelations, Relation{}},
	schema.RelationMembers: {decodeRelationMembers, RelationMember{}},
	schema.RelationTags:    {decodeRelationTags, RelationTag{}},
	schema.Changesets:      {decodeChangesets, Changeset{}},
	schema.Users:           {decodeUsers, User{}},
}

// NewDecoder resolves the decoder for table against its declared columns.
// Unknown tables and missing columns fail here rather than per row.
func NewDecoder(table schema.Table, columns []string) (Decoder, error) {
	reg, ok := registry[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownTable, table)
	}
	return reg.build(columns)
}

// Prototype returns the zero record decoded from table.
func Prototype(table schema.Table) (Record, error) {
	reg, ok := registry[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownTable, table)
	}
	return reg.proto, nil
}

func decodeNodes(columns []string) (Decoder, error) {
	off, err := schema.NewNodeFields(schema.Nodes, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		n := Node{
			NodeID:      f.int64(off.NodeID),
			Latitude:    f.int32(off.Latitude),
			Longitude:   f.int32(off.Longitude),
			ChangesetID: f.int64(off.ChangesetID),
			Visible:     f.bool(off.Visible),
			Timestamp:   f.time(off.Timestamp),
			Tile:        f.int64(off.Tile),
			Version:     f.int64(off.Version),
			RedactionID: f.optInt32(off.RedactionID),
		}
		return n, f.err
	}, nil
}

func decodeNodeTags(columns []string) (Decoder, error) {
	off, err := schema.NewTagFields(schema.NodeTags, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		t := NodeTag{
			NodeID:  f.int64(off.OwnerID),
			Version: f.int64(off.Version),
			K:       f.text(off.K),
			V:       f.text(off.V),
		}
		return t, f.err
	}, nil
}

func decodeEntity(table schema.Table, columns []string, build func(f *fields, off schema.EntityFields) Record) (Decoder, error) {
	off, err := schema.NewEntityFields(table, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		r := build(&f, off)
		return r, f.err
	}, nil
}

func decodeWays(columns []string) (Decoder, error) {
	return decodeEntity(schema.Ways, columns, func(f *fields, off schema.EntityFields) Record {
		return Way{
			WayID:       f.int64(off.ID),
			ChangesetID: f.int64(off.ChangesetID),
			Timestamp:   f.time(off.Timestamp),
			Version:     f.int64(off.Version),
			Visible:     f.bool(off.Visible),
			RedactionID: f.optInt32(off.RedactionID),
		}
	})
}

func decodeRelations(columns []string) (Decoder, error) {
	return decodeEntity(schema.Relations, columns, func(f *fields, off schema.EntityFields) Record {
		return Relation{
			RelationID:  f.int64(off.ID),
			ChangesetID: f.int64(off.ChangesetID),
			Timestamp:   f.time(off.Timestamp),
			Version:     f.int64(off.Version),
			Visible:     f.bool(off.Visible),
			RedactionID: f.optInt32(off.RedactionID),
		}
	})
}

func decodeWayNodes(columns []string) (Decoder, error) {
	off, err := schema.NewWayNodeFields(schema.WayNodes, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		wn := WayNode{
			WayID:      f.int64(off.WayID),
			NodeID:     f.int64(off.NodeID),
			Version:    f.int64(off.Version),
			SequenceID: f.int64(off.SequenceID),
		}
		return wn, f.err
	}, nil
}

func decodeWayTags(columns []string) (Decoder, error) {
	off, err := schema.NewTagFields(schema.WayTags, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		t := WayTag{
			WayID:   f.int64(off.OwnerID),
			Version: f.int64(off.Version),
			K:       f.text(off.K),
			V:       f.text(off.V),
		}
		return t, f.err
	}, nil
}

func decodeRelationMembers(columns []string) (Decoder, error) {
	off, err := schema.NewRelationMemberFields(schema.RelationMembers, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		m := RelationMember{
			RelationID: f.int64(off.RelationID),
			MemberID:   f.int64(off.MemberID),
			MemberRole: f.text(off.MemberRole),
			Version:    f.int64(off.Version),
			SequenceID: f.int64(off.SequenceID),
		}
		if s, ok := f.required(off.MemberType); ok {
			t, err := ParseMemberType(s)
			if err != nil {
				f.fail(off.MemberType, err)
			}
			m.MemberType = t
		}
		return m, f.err
	}, nil
}

func decodeRelationTags(columns []string) (Decoder, error) {
	off, err := schema.NewTagFields(schema.RelationTags, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		t := RelationTag{
			RelationID: f.int64(off.OwnerID),
			Version:    f.int64(off.Version),
			K:          f.text(off.K),
			V:          f.text(off.V),
		}
		return t, f.err
	}, nil
}

func decodeChangesets(columns []string) (Decoder, error) {
	off, err := schema.NewChangesetFields(schema.Changesets, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		c := Changeset{
			ID:         f.int64(off.ID),
			UserID:     f.int64(off.UserID),
			CreatedAt:  f.time(off.CreatedAt),
			MinLat:     f.optInt32(off.MinLat),
			MaxLat:     f.optInt32(off.MaxLat),
			MinLon:     f.optInt32(off.MinLon),
			MaxLon:     f.optInt32(off.MaxLon),
			ClosedAt:   f.time(off.ClosedAt),
			NumChanges: f.int32(off.NumChanges),
		}
		return c, f.err
	}, nil
}

func decodeUsers(columns []string) (Decoder, error) {
	off, err := schema.NewUserFields(schema.Users, columns)
	if err != nil {
		return nil, err
	}
	return func(values []string) (Record, error) {
		f := fields{values: values}
		u := User{
			Email:             f.text(off.Email),
			ID:                f.int64(off.ID),
			PassCrypt:         f.text(off.PassCrypt),
			CreationTime:      f.time(off.CreationTime),
			DisplayName:       f.text(off.DisplayName),
			DataPublic:        f.bool(off.DataPublic),
			Description:       f.text(off.Description),
			HomeLat:           f.optFloat64(off.HomeLat),
			HomeLon:           f.optFloat64(off.HomeLon),
			HomeZoom:          f.optInt16(off.HomeZoom),
			PassSalt:          f.optText(off.PassSalt),
			EmailValid:        f.bool(off.EmailValid),
			NewEmail:          f.optText(off.NewEmail),
			CreationIP:        f.optText(off.CreationIP),
			Languages:         f.optText(off.Languages),
			TermsAgreed:       f.optTime(off.TermsAgreed),
			ConsiderPD:        f.bool(off.ConsiderPD),
			AuthUID:           f.optText(off.AuthUID),
			PreferredEditor:   f.optText(off.PreferredEditor),
			TermsSeen:         f.bool(off.TermsSeen),
			ChangesetsCount:   f.int32(off.ChangesetsCount),
			TracesCount:       f.int32(off.TracesCount),
			DiaryEntriesCount: f.int32(off.DiaryEntriesCount),
			ImageUseGravatar:  f.bool(off.ImageUseGravatar),
			AuthProvider:      f.optText(off.AuthProvider),
			HomeTile:          f.optInt64(off.HomeTile),
			TouAgreed:         f.optTime(off.TouAgreed),
		}
		if s, ok := f.required(off.Status); ok {
			st, err := ParseUserStatus(s)
			if err != nil {
				f.fail(off.Status, err)
			}
			u.Status = st
		}
		if s, ok := f.required(off.DescriptionFormat); ok {
			df, err := ParseDescriptionFormat(s)
			if err != nil {
				f.fail(off.DescriptionFormat, err)
			}
			u.DescriptionFormat = df
		}
		return u, f.err
	}, nil
}
