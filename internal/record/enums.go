package record

import "fmt"

// MemberType is the nwr_enum of relation members.
type MemberType uint8

const (
	MemberNode MemberType = iota
	MemberWay
	MemberRelation
)

func (t MemberType) String() string {
	switch t {
	case MemberNode:
		return "Node"
	case MemberWay:
		return "Way"
	case MemberRelation:
		return "Relation"
	}
	return fmt.Sprintf("MemberType(%d)", uint8(t))
}

// ParseMemberType accepts the enum labels and their one-letter forms.
func ParseMemberType(s string) (MemberType, error) {
	switch s {
	case "Node", "n":
		return MemberNode, nil
	case "Way", "w":
		return MemberWay, nil
	case "Relation", "r":
		return MemberRelation, nil
	}
	return 0, fmt.Errorf("%w: member type %q", ErrBadEnum, s)
}

type UserStatus uint8

const (
	UserPending UserStatus = iota
	UserActive
	UserConfirmed
	UserSuspended
	UserDeleted
)

var userStatusNames = [...]string{"pending", "active", "confirmed", "suspended", "deleted"}

func (s UserStatus) String() string {
	if int(s) < len(userStatusNames) {
		return userStatusNames[s]
	}
	return fmt.Sprintf("UserStatus(%d)", uint8(s))
}

func ParseUserStatus(s string) (UserStatus, error) {
	for i, name := range userStatusNames {
		if s == name {
			return UserStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: user status %q", ErrBadEnum, s)
}

type DescriptionFormat uint8

const (
	FormatHTML DescriptionFormat = iota
	FormatMarkdown
	FormatText
)

var formatNames = [...]string{"html", "markdown", "text"}

func (f DescriptionFormat) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("DescriptionFormat(%d)", uint8(f))
}

func ParseDescriptionFormat(s string) (DescriptionFormat, error) {
	for i, name := range formatNames {
		if s == name {
			return DescriptionFormat(i), nil
		}
	}
	return 0, fmt.Errorf("%w: description format %q", ErrBadEnum, s)
}
