package schema

import "fmt"

// NodeFields covers nodes and current_nodes.
type NodeFields struct {
	NodeID      int
	Latitude    int
	Longitude   int
	ChangesetID int
	Visible     int
	Timestamp   int
	Tile        int
	Version     int
	RedactionID int
}

// EntityFields covers ways, relations and their current_* counterparts.
type EntityFields struct {
	ID          int
	ChangesetID int
	Timestamp   int
	Version     int
	Visible     int
	RedactionID int
}

// TagFields covers every key/value table. Version is Absent for the
// current_* and changeset tag tables.
type TagFields struct {
	OwnerID int
	Version int
	K       int
	V       int
}

type WayNodeFields struct {
	WayID      int
	NodeID     int
	Version    int
	SequenceID int
}

type RelationMemberFields struct {
	RelationID int
	MemberType int
	MemberID   int
	MemberRole int
	Version    int
	SequenceID int
}

type ChangesetFields struct {
	ID         int
	UserID     int
	CreatedAt  int
	MinLat     int
	MaxLat     int
	MinLon     int
	MaxLon     int
	ClosedAt   int
	NumChanges int
}

type UserFields struct {
	Email             int
	ID                int
	PassCrypt         int
	CreationTime      int
	DisplayName       int
	DataPublic        int
	Description       int
	HomeLat           int
	HomeLon           int
	HomeZoom          int
	PassSalt          int
	EmailValid        int
	NewEmail          int
	CreationIP        int
	Languages         int
	Status            int
	TermsAgreed       int
	ConsiderPD        int
	AuthUID           int
	PreferredEditor   int
	TermsSeen         int
	DescriptionFormat int
	ChangesetsCount   int
	TracesCount       int
	DiaryEntriesCount int
	ImageUseGravatar  int
	AuthProvider      int
	HomeTile          int
	TouAgreed         int
}

func NewNodeFields(table Table, columns []string) (NodeFields, error) {
	r := newResolver(table, columns)
	f := NodeFields{
		Latitude:    r.col("latitude"),
		Longitude:   r.col("longitude"),
		ChangesetID: r.col("changeset_id"),
		Visible:     r.col("visible"),
		Timestamp:   r.col("timestamp"),
		Tile:        r.col("tile"),
		Version:     r.col("version"),
		RedactionID: Absent,
	}
	switch table {
	case Nodes:
		f.NodeID = r.col("node_id")
		f.RedactionID = r.col("redaction_id")
	case CurrentNodes:
		f.NodeID = r.col("id")
	default:
		return f, fmt.Errorf("%w: %s is not a node table", ErrUnknownTable, table)
	}
	return f, r.err
}

func NewEntityFields(table Table, columns []string) (EntityFields, error) {
	r := newResolver(table, columns)
	f := EntityFields{
		ChangesetID: r.col("changeset_id"),
		Timestamp:   r.col("timestamp"),
		Version:     r.col("version"),
		Visible:     r.col("visible"),
		RedactionID: Absent,
	}
	switch table {
	case Ways:
		f.ID = r.col("way_id")
		f.RedactionID = r.col("redaction_id")
	case Relations:
		f.ID = r.col("relation_id")
		f.RedactionID = r.col("redaction_id")
	case CurrentWays, CurrentRelations:
		f.ID = r.col("id")
	default:
		return f, fmt.Errorf("%w: %s is not a way or relation table", ErrUnknownTable, table)
	}
	return f, r.err
}

var tagOwners = map[Table]string{
	NodeTags:            "node_id",
	WayTags:             "way_id",
	RelationTags:        "relation_id",
	CurrentNodeTags:     "node_id",
	CurrentWayTags:      "way_id",
	CurrentRelationTags: "relation_id",
	ChangesetTags:       "changeset_id",
}

func NewTagFields(table Table, columns []string) (TagFields, error) {
	owner, ok := tagOwners[table]
	if !ok {
		return TagFields{}, fmt.Errorf("%w: %s is not a tag table", ErrUnknownTable, table)
	}
	r := newResolver(table, columns)
	f := TagFields{
		OwnerID: r.col(owner),
		Version: Absent,
		K:       r.col("k"),
		V:       r.col("v"),
	}
	switch table {
	case NodeTags, WayTags, RelationTags:
		f.Version = r.col("version")
	}
	return f, r.err
}

func NewWayNodeFields(table Table, columns []string) (WayNodeFields, error) {
	if table != WayNodes && table != CurrentWayNodes {
		return WayNodeFields{}, fmt.Errorf("%w: %s is not a way node table", ErrUnknownTable, table)
	}
	r := newResolver(table, columns)
	f := WayNodeFields{
		WayID:      r.col("way_id"),
		NodeID:     r.col("node_id"),
		Version:    Absent,
		SequenceID: r.col("sequence_id"),
	}
	if table == WayNodes {
		f.Version = r.col("version")
	}
	return f, r.err
}

func NewRelationMemberFields(table Table, columns []string) (RelationMemberFields, error) {
	if table != RelationMembers && table != CurrentRelationMembers {
		return RelationMemberFields{}, fmt.Errorf("%w: %s is not a relation member table", ErrUnknownTable, table)
	}
	r := newResolver(table, columns)
	f := RelationMemberFields{
		RelationID: r.col("relation_id"),
		MemberType: r.col("member_type"),
		MemberID:   r.col("member_id"),
		MemberRole: r.col("member_role"),
		Version:    Absent,
		SequenceID: r.col("sequence_id"),
	}
	if table == RelationMembers {
		f.Version = r.col("version")
	}
	return f, r.err
}

func NewChangesetFields(table Table, columns []string) (ChangesetFields, error) {
	if table != Changesets {
		return ChangesetFields{}, fmt.Errorf("%w: %s is not the changesets table", ErrUnknownTable, table)
	}
	r := newResolver(table, columns)
	f := ChangesetFields{
		ID:         r.col("id"),
		UserID:     r.col("user_id"),
		CreatedAt:  r.col("created_at"),
		MinLat:     r.col("min_lat"),
		MaxLat:     r.col("max_lat"),
		MinLon:     r.col("min_lon"),
		MaxLon:     r.col("max_lon"),
		ClosedAt:   r.col("closed_at"),
		NumChanges: r.col("num_changes"),
	}
	return f, r.err
}

func NewUserFields(table Table, columns []string) (UserFields, error) {
	if table != Users {
		return UserFields{}, fmt.Errorf("%w: %s is not the users table", ErrUnknownTable, table)
	}
	r := newResolver(table, columns)
	f := UserFields{
		Email:             r.col("email"),
		ID:                r.col("id"),
		PassCrypt:         r.col("pass_crypt"),
		CreationTime:      r.col("creation_time"),
		DisplayName:       r.col("display_name"),
		DataPublic:        r.col("data_public"),
		Description:       r.col("description"),
		HomeLat:           r.col("home_lat"),
		HomeLon:           r.col("home_lon"),
		HomeZoom:          r.col("home_zoom"),
		PassSalt:          r.col("pass_salt"),
		EmailValid:        r.col("email_valid"),
		NewEmail:          r.col("new_email"),
		CreationIP:        r.col("creation_ip"),
		Languages:         r.col("languages"),
		Status:            r.col("status"),
		TermsAgreed:       r.col("terms_agreed"),
		ConsiderPD:        r.col("consider_pd"),
		AuthUID:           r.col("auth_uid"),
		PreferredEditor:   r.col("preferred_editor"),
		TermsSeen:         r.col("terms_seen"),
		DescriptionFormat: r.col("description_format"),
		ChangesetsCount:   r.col("changesets_count"),
		TracesCount:       r.col("traces_count"),
		DiaryEntriesCount: r.col("diary_entries_count"),
		ImageUseGravatar:  r.col("image_use_gravatar"),
		AuthProvider:      r.col("auth_provider"),
		HomeTile:          r.col("home_tile"),
		TouAgreed:         r.col("tou_agreed"),
	}
	return f, r.err
}
