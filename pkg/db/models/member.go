package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rowanpress/members-backend/pkg/enums"
)

// Member is an end user of the publication. It owns zero or more Customer
// rows (the member's identities at the payment gateway) and, through
// those, zero or more mirrored Subscription rows.
type Member struct {
	ID        uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string             `gorm:"column:email;not null;unique"`
	Name      string             `gorm:"column:name"`
	Note      *string            `gorm:"column:note"`
	Status    enums.MemberStatus `gorm:"column:status;not null;default:'free'"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
