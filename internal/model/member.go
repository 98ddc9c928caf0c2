package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleStaff  MemberRole = "STAFF"
	MemberRoleMember MemberRole = "MEMBER"
)

// Member is the directory entry as seen by the announcement core.
// EmailNotifications is already resolved: storage maps an unset preference to true.
type Member struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	Email              *string    `db:"email" json:"email,omitempty"`
	EmailNotifications bool       `db:"email_notifications" json:"email_notifications"`
	Role               MemberRole `db:"role" json:"role"`
	DeletedAt          *time.Time `db:"deleted_at" json:"-"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (m *Member) CanPublishAnnouncements() bool {
	if m == nil {
		return false
	}
	switch MemberRole(strings.ToUpper(string(m.Role))) {
	case MemberRoleAdmin, MemberRoleStaff:
		return true
	default:
		return false
	}
}

func (m *Member) ContactEmail() string {
	if m == nil || m.Email == nil {
		return ""
	}
	return strings.TrimSpace(*m.Email)
}

func (m *Member) IsDeleted() bool {
	return m != nil && m.DeletedAt != nil
}
