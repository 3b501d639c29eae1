package models

import (
	"time"

	"github.com/rowanpress/members-backend/pkg/enums"
)

// BillingPlan is a catalog row for a gateway price. The primary key is the
// gateway-assigned price id. Complimentary marks the zero-cost plan the
// reconciliation engine grants administratively, one per currency.
type BillingPlan struct {
	ID            string                `gorm:"primaryKey"`
	Nickname      string                `gorm:"column:nickname"`
	Interval      enums.BillingInterval `gorm:"column:interval;not null"`
	Amount        int64                 `gorm:"column:amount;not null;default:0"`
	Currency      string                `gorm:"column:currency;not null"`
	Complimentary bool                  `gorm:"column:complimentary;not null;default:false"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
