package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rowanpress/members-backend/pkg/enums"
)

// Subscription mirrors a payment gateway subscription. subscription_id is
// the upsert key: writes for a known subscription_id overwrite fields and
// never create a second row. Status is stored as plain text so values the
// gateway introduces later pass through opaquely.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID     string                   `gorm:"column:subscription_id;not null;unique"`
	CustomerID         string                   `gorm:"column:customer_id;not null;index"`
	Status             enums.SubscriptionStatus `gorm:"column:status;not null"`
	CancelAtPeriodEnd  bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CancellationReason *string                  `gorm:"column:cancellation_reason"`
	CurrentPeriodEnd   *time.Time               `gorm:"column:current_period_end"`
	StartDate          *time.Time               `gorm:"column:start_date"`
	CardLast4          *string                  `gorm:"column:card_last4"`
	PlanID             string                   `gorm:"column:plan_id;not null"`
	PlanNickname       string                   `gorm:"column:plan_nickname"`
	PlanInterval       string                   `gorm:"column:plan_interval"`
	PlanAmount         int64                    `gorm:"column:plan_amount;not null;default:0"`
	PlanCurrency       string                   `gorm:"column:plan_currency"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
