package plans

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/enums"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
)

// Catalog resolves billing plans for the reconciliation engine.
type Catalog interface {
	// Plans lists every catalog plan.
	Plans(ctx context.Context) ([]models.BillingPlan, error)
	// ComplimentaryPlan resolves the zero-cost plan for a currency, or
	// (nil, nil) when the catalog has none for that currency.
	ComplimentaryPlan(ctx context.Context, currency string) (*models.BillingPlan, error)
}

// Service exposes the catalog plus the admin maintenance surface.
type Service interface {
	Catalog
	UpsertPlan(ctx context.Context, plan *models.BillingPlan) error
	DeletePlan(ctx context.Context, id string) error
}

type service struct {
	repo Repository
}

// NewService builds a catalog service over the plan repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Plans(ctx context.Context) ([]models.BillingPlan, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list billing plans")
	}
	return plans, nil
}

func (s *service) ComplimentaryPlan(ctx context.Context, currency string) (*models.BillingPlan, error) {
	plan, err := s.repo.FindComplimentaryPlan(ctx, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup complimentary plan")
	}
	return plan, nil
}

func (s *service) UpsertPlan(ctx context.Context, plan *models.BillingPlan) error {
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan is required")
	}
	if strings.TrimSpace(plan.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if !plan.Interval.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid billing interval %q", plan.Interval)
	}
	if plan.Amount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan amount must not be negative")
	}
	if plan.Complimentary && plan.Amount != 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "complimentary plans must have a zero amount")
	}
	plan.Currency = strings.ToLower(strings.TrimSpace(plan.Currency))
	if plan.Currency == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan currency is required")
	}
	if err := s.repo.UpsertPlan(ctx, plan); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert billing plan")
	}
	return nil
}

func (s *service) DeletePlan(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if err := s.repo.DeletePlan(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete billing plan")
	}
	return nil
}

// MonthlyPlan returns the first catalog plan billed monthly, used as the
// currency fallback when a member has no active-like subscription.
func MonthlyPlan(plansList []models.BillingPlan) *models.BillingPlan {
	for i := range plansList {
		if plansList[i].Interval == enums.BillingIntervalMonth {
			return &plansList[i]
		}
	}
	return nil
}

// FormatAmount renders a plan amount (minor units) as a decimal string,
// e.g. 500 -> "5.00".
func FormatAmount(amount int64) string {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).StringFixed(2)
}
