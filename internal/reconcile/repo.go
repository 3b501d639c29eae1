package reconcile

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rowanpress/members-backend/pkg/db/models"
)

// Store is the mirror persistence surface the engine writes through.
// Lookup methods return (nil, nil) when the row does not exist.
type Store interface {
	MemberByID(ctx context.Context, memberID uuid.UUID) (*models.Member, error)

	CustomersByMember(ctx context.Context, memberID uuid.UUID) ([]models.Customer, error)
	CustomerForMember(ctx context.Context, memberID uuid.UUID, customerID string) (*models.Customer, error)
	// CreateCustomer is insert-only: a second write for the same
	// customer_id fails rather than silently re-attributing the row.
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	UpsertCustomer(ctx context.Context, customer *models.Customer) error

	SubscriptionsByMember(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error)
	SubscriptionsByCustomer(ctx context.Context, customerID string) ([]models.Subscription, error)
	SubscriptionForMember(ctx context.Context, memberID uuid.UUID, subscriptionID string) (*models.Subscription, error)
	// UpsertSubscription is keyed by subscription_id: repeated writes for
	// the same remote subscription overwrite fields, never duplicate.
	UpsertSubscription(ctx context.Context, subscription *models.Subscription) error
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error
}

type store struct {
	db *gorm.DB
}

// NewStore returns a mirror store bound to the provided database.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) MemberByID(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).
		Where("id = ?", memberID).
		First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (s *store) CustomersByMember(ctx context.Context, memberID uuid.UUID) ([]models.Customer, error) {
	var customers []models.Customer
	if err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at ASC").
		Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *store) CustomerForMember(ctx context.Context, memberID uuid.UUID, customerID string) (*models.Customer, error) {
	if customerID == "" {
		return nil, nil
	}
	var customer models.Customer
	if err := s.db.WithContext(ctx).
		Where("member_id = ? AND customer_id = ?", memberID, customerID).
		First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (s *store) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return s.db.WithContext(ctx).Create(customer).Error
}

func (s *store) UpsertCustomer(ctx context.Context, customer *models.Customer) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"member_id", "name", "email", "updated_at"}),
		}).
		Create(customer).Error
}

func (s *store) SubscriptionsByMember(ctx context.Context, memberID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := s.db.WithContext(ctx).
		Joins("JOIN customers ON customers.customer_id = subscriptions.customer_id").
		Where("customers.member_id = ?", memberID).
		Order("subscriptions.created_at ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *store) SubscriptionsByCustomer(ctx context.Context, customerID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *store) SubscriptionForMember(ctx context.Context, memberID uuid.UUID, subscriptionID string) (*models.Subscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := s.db.WithContext(ctx).
		Joins("JOIN customers ON customers.customer_id = subscriptions.customer_id").
		Where("customers.member_id = ? AND subscriptions.subscription_id = ?", memberID, subscriptionID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (s *store) UpsertSubscription(ctx context.Context, subscription *models.Subscription) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"customer_id",
				"status",
				"cancel_at_period_end",
				"cancellation_reason",
				"current_period_end",
				"start_date",
				"card_last4",
				"plan_id",
				"plan_nickname",
				"plan_interval",
				"plan_amount",
				"plan_currency",
				"updated_at",
			}),
		}).
		Create(subscription).Error
}

func (s *store) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	return s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Update("cancel_at_period_end", cancel).Error
}
