package plans

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rowanpress/members-backend/pkg/db/models"
)

// Repository handles billing plan persistence.
type Repository interface {
	ListPlans(ctx context.Context) ([]models.BillingPlan, error)
	FindPlanByID(ctx context.Context, id string) (*models.BillingPlan, error)
	FindComplimentaryPlan(ctx context.Context, currency string) (*models.BillingPlan, error)
	UpsertPlan(ctx context.Context, plan *models.BillingPlan) error
	DeletePlan(ctx context.Context, id string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListPlans(ctx context.Context) ([]models.BillingPlan, error) {
	var plans []models.BillingPlan
	if err := r.db.WithContext(ctx).
		Order("currency ASC, amount ASC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id string) (*models.BillingPlan, error) {
	if id == "" {
		return nil, nil
	}
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindComplimentaryPlan(ctx context.Context, currency string) (*models.BillingPlan, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, nil
	}
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).
		Where("complimentary = ? AND currency = ?", true, currency).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) UpsertPlan(ctx context.Context, plan *models.BillingPlan) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(plan).Error
}

func (r *repository) DeletePlan(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.BillingPlan{}).Error
}
