package enums

import "fmt"

// MemberStatus describes a member's access tier, derived from their
// mirrored subscriptions.
type MemberStatus string

const (
	MemberStatusFree          MemberStatus = "free"
	MemberStatusPaid          MemberStatus = "paid"
	MemberStatusComplimentary MemberStatus = "comped"
)

var validMemberStatuses = []MemberStatus{
	MemberStatusFree,
	MemberStatusPaid,
	MemberStatusComplimentary,
}

// String implements fmt.Stringer.
func (m MemberStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m MemberStatus) IsValid() bool {
	for _, candidate := range validMemberStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberStatus converts raw input into a MemberStatus.
func ParseMemberStatus(value string) (MemberStatus, error) {
	for _, candidate := range validMemberStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member status %q", value)
}
