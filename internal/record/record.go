// Package record holds the typed rows of the apidb tables together with
// their text-format decoding and encoding.
package record

import (
	"time"

	"github.com/wegman-software/osm-admin/internal/schema"
)

// Record is one decoded row of a known table.
type Record interface {
	Table() schema.Table
}

type Node struct {
	NodeID      int64
	Latitude    int32
	Longitude   int32
	ChangesetID int64
	Visible     bool
	Timestamp   time.Time
	Tile        int64
	Version     int64
	RedactionID *int32
}

type NodeTag struct {
	NodeID  int64
	Version int64
	K       string
	V       string
}

type Way struct {
	WayID       int64
	ChangesetID int64
	Timestamp   time.Time
	Version     int64
	Visible     bool
	RedactionID *int32
}

type WayNode struct {
	WayID      int64
	NodeID     int64
	Version    int64
	SequenceID int64
}

type WayTag struct {
	WayID   int64
	Version int64
	K       string
	V       string
}

type Relation struct {
	RelationID  int64
	ChangesetID int64
	Timestamp   time.Time
	Version     int64
	Visible     bool
	RedactionID *int32
}

type RelationMember struct {
	RelationID int64
	MemberType MemberType
	MemberID   int64
	MemberRole string
	Version    int64
	SequenceID int64
}

type RelationTag struct {
	RelationID int64
	Version    int64
	K          string
	V          string
}

// Changeset bounds are scaled by 1e7 and absent for empty changesets.
type Changeset struct {
	ID         int64
	UserID     int64
	CreatedAt  time.Time
	MinLat     *int32
	MaxLat     *int32
	MinLon     *int32
	MaxLon     *int32
	ClosedAt   time.Time
	NumChanges int32
}

type User struct {
	Email             string
	ID                int64
	PassCrypt         string
	CreationTime      time.Time
	DisplayName       string
	DataPublic        bool
	Description       string
	HomeLat           *float64
	HomeLon           *float64
	HomeZoom          *int16
	PassSalt          *string
	EmailValid        bool
	NewEmail          *string
	CreationIP        *string
	Languages         *string
	Status            UserStatus
	TermsAgreed       *time.Time
	ConsiderPD        bool
	AuthUID           *string
	PreferredEditor   *string
	TermsSeen         bool
	DescriptionFormat DescriptionFormat
	ChangesetsCount   int32
	TracesCount       int32
	DiaryEntriesCount int32
	ImageUseGravatar  bool
	AuthProvider      *string
	HomeTile          *int64
	TouAgreed         *time.Time
}

// Tag is a key/value row without a version, as stored in the current_*
// tag tables and in changeset_tags.
type Tag struct {
	OwnerID int64
	K       string
	V       string
}

func (Node) Table() schema.Table           { return schema.Nodes }
func (NodeTag) Table() schema.Table        { return schema.NodeTags }
func (Way) Table() schema.Table            { return schema.Ways }
func (WayNode) Table() schema.Table        { return schema.WayNodes }
func (WayTag) Table() schema.Table         { return schema.WayTags }
func (Relation) Table() schema.Table       { return schema.Relations }
func (RelationMember) Table() schema.Table { return schema.RelationMembers }
func (RelationTag) Table() schema.Table    { return schema.RelationTags }
func (Changeset) Table() schema.Table      { return schema.Changesets }
func (User) Table() schema.Table           { return schema.Users }
