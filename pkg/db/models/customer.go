package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer mirrors a payment gateway customer record and binds it to a
// member. A member may accumulate several Customer rows over time (data
// migrations, re-registrations); customer_id stays unique across all of
// them. Rows are written only by the reconciliation engine, never from
// user input.
type Customer struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID string    `gorm:"column:customer_id;not null;unique"`
	MemberID   uuid.UUID `gorm:"column:member_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name"`
	Email      string    `gorm:"column:email"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
