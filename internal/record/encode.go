package record

import (
	"strconv"
	"time"

	"github.com/wegman-software/osm-admin/internal/schema"
)

// Row is one output line in its table's declared column order. Columns the
// encoder does not know stay NULL.
type Row []string

func NewRow(width int) Row {
	r := make(Row, width)
	r.Reset()
	return r
}

func (r Row) Reset() {
	for i := range r {
		r[i] = Null
	}
}

func (r Row) set(i int, s string) {
	if i != schema.Absent && i < len(r) {
		r[i] = s
	}
}

func (r Row) setInt(i int, v int64)        { r.set(i, strconv.FormatInt(v, 10)) }
func (r Row) setBool(i int, v bool)        { r.set(i, FormatBool(v)) }
func (r Row) setText(i int, s string)      { r.set(i, Escape(s)) }
func (r Row) setTime(i int, t time.Time)   { r.set(i, t.UTC().Format(TimeLayout)) }
func (r Row) setMicros(i int, t time.Time) { r.set(i, t.UTC().Format(MicroTimeLayout)) }

func (r Row) setOptInt32(i int, v *int32) {
	if v != nil {
		r.setInt(i, int64(*v))
	}
}

func (r Row) setOptText(i int, v *string) {
	if v != nil {
		r.setText(i, *v)
	}
}

func (r Row) setOptTime(i int, v *time.Time) {
	if v != nil {
		r.setMicros(i, *v)
	}
}

// Encode fills row for nodes or current_nodes.
func (n Node) Encode(off schema.NodeFields, row Row) {
	row.setInt(off.NodeID, n.NodeID)
	row.setInt(off.Latitude, int64(n.Latitude))
	row.setInt(off.Longitude, int64(n.Longitude))
	row.setInt(off.ChangesetID, n.ChangesetID)
	row.setBool(off.Visible, n.Visible)
	row.setTime(off.Timestamp, n.Timestamp)
	row.setInt(off.Tile, n.Tile)
	row.setInt(off.Version, n.Version)
	row.setOptInt32(off.RedactionID, n.RedactionID)
}

func (t NodeTag) Encode(off schema.TagFields, row Row) {
	encodeTag(off, row, t.NodeID, t.Version, t.K, t.V)
}

func (t WayTag) Encode(off schema.TagFields, row Row) {
	encodeTag(off, row, t.WayID, t.Version, t.K, t.V)
}

func (t RelationTag) Encode(off schema.TagFields, row Row) {
	encodeTag(off, row, t.RelationID, t.Version, t.K, t.V)
}

func (t Tag) Encode(off schema.TagFields, row Row) {
	encodeTag(off, row, t.OwnerID, 0, t.K, t.V)
}

func encodeTag(off schema.TagFields, row Row, owner, version int64, k, v string) {
	row.setInt(off.OwnerID, owner)
	row.setInt(off.Version, version)
	row.setText(off.K, k)
	row.setText(off.V, v)
}

// Encode fills row for ways or current_ways.
func (w Way) Encode(off schema.EntityFields, row Row) {
	encodeEntity(off, row, w.WayID, w.ChangesetID, w.Timestamp, w.Version, w.Visible, w.RedactionID)
}

// Encode fills row for relations or current_relations.
func (r Relation) Encode(off schema.EntityFields, row Row) {
	encodeEntity(off, row, r.RelationID, r.ChangesetID, r.Timestamp, r.Version, r.Visible, r.RedactionID)
}

func encodeEntity(off schema.EntityFields, row Row, id, changeset int64, ts time.Time, version int64, visible bool, redaction *int32) {
	row.setInt(off.ID, id)
	row.setInt(off.ChangesetID, changeset)
	row.setTime(off.Timestamp, ts)
	row.setInt(off.Version, version)
	row.setBool(off.Visible, visible)
	row.setOptInt32(off.RedactionID, redaction)
}

func (wn WayNode) Encode(off schema.WayNodeFields, row Row) {
	row.setInt(off.WayID, wn.WayID)
	row.setInt(off.NodeID, wn.NodeID)
	row.setInt(off.Version, wn.Version)
	row.setInt(off.SequenceID, wn.SequenceID)
}

func (m RelationMember) Encode(off schema.RelationMemberFields, row Row) {
	row.setInt(off.RelationID, m.RelationID)
	row.set(off.MemberType, m.MemberType.String())
	row.setInt(off.MemberID, m.MemberID)
	row.setText(off.MemberRole, m.MemberRole)
	row.setInt(off.Version, m.Version)
	row.setInt(off.SequenceID, m.SequenceID)
}

func (c Changeset) Encode(off schema.ChangesetFields, row Row) {
	row.setInt(off.ID, c.ID)
	row.setInt(off.UserID, c.UserID)
	row.setMicros(off.CreatedAt, c.CreatedAt)
	row.setOptInt32(off.MinLat, c.MinLat)
	row.setOptInt32(off.MaxLat, c.MaxLat)
	row.setOptInt32(off.MinLon, c.MinLon)
	row.setOptInt32(off.MaxLon, c.MaxLon)
	row.setMicros(off.ClosedAt, c.ClosedAt)
	row.setInt(off.NumChanges, int64(c.NumChanges))
}

func (u User) Encode(off schema.UserFields, row Row) {
	row.setText(off.Email, u.Email)
	row.setInt(off.ID, u.ID)
	row.setText(off.PassCrypt, u.PassCrypt)
	row.setMicros(off.CreationTime, u.CreationTime)
	row.setText(off.DisplayName, u.DisplayName)
	row.setBool(off.DataPublic, u.DataPublic)
	row.setText(off.Description, u.Description)
	if u.HomeLat != nil {
		row.set(off.HomeLat, strconv.FormatFloat(*u.HomeLat, 'f', -1, 64))
	}
	if u.HomeLon != nil {
		row.set(off.HomeLon, strconv.FormatFloat(*u.HomeLon, 'f', -1, 64))
	}
	if u.HomeZoom != nil {
		row.setInt(off.HomeZoom, int64(*u.HomeZoom))
	}
	row.setOptText(off.PassSalt, u.PassSalt)
	row.setBool(off.EmailValid, u.EmailValid)
	row.setOptText(off.NewEmail, u.NewEmail)
	row.setOptText(off.CreationIP, u.CreationIP)
	row.setOptText(off.Languages, u.Languages)
	row.set(off.Status, u.Status.String())
	row.setOptTime(off.TermsAgreed, u.TermsAgreed)
	row.setBool(off.ConsiderPD, u.ConsiderPD)
	row.setOptText(off.AuthUID, u.AuthUID)
	row.setOptText(off.PreferredEditor, u.PreferredEditor)
	row.setBool(off.TermsSeen, u.TermsSeen)
	row.set(off.DescriptionFormat, u.DescriptionFormat.String())
	row.setInt(off.ChangesetsCount, int64(u.ChangesetsCount))
	row.setInt(off.TracesCount, int64(u.TracesCount))
	row.setInt(off.DiaryEntriesCount, int64(u.DiaryEntriesCount))
	row.setBool(off.ImageUseGravatar, u.ImageUseGravatar)
	row.setOptText(off.AuthProvider, u.AuthProvider)
	if u.HomeTile != nil {
		row.setInt(off.HomeTile, *u.HomeTile)
	}
	row.setOptTime(off.TouAgreed, u.TouAgreed)
}
