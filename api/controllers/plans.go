package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rowanpress/members-backend/api/responses"
	"github.com/rowanpress/members-backend/api/validators"
	planssvc "github.com/rowanpress/members-backend/internal/plans"
	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/enums"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
	"github.com/rowanpress/members-backend/pkg/logger"
)

// PlanService describes the billing plan methods used by the HTTP
// controllers.
type PlanService interface {
	Plans(ctx context.Context) ([]models.BillingPlan, error)
	UpsertPlan(ctx context.Context, plan *models.BillingPlan) error
	DeletePlan(ctx context.Context, id string) error
}

type planResponse struct {
	ID            string `json:"id"`
	Nickname      string `json:"nickname"`
	Interval      string `json:"interval"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Currency      string `json:"currency"`
	Complimentary bool   `json:"complimentary"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

type planUpsertRequest struct {
	Nickname      string `json:"nickname" validate:"max=191"`
	Interval      string `json:"interval" validate:"required"`
	Amount        *int64 `json:"amount" validate:"required"`
	Currency      string `json:"currency" validate:"required,len=3"`
	Complimentary *bool  `json:"complimentary"`
}

func PlanList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plansList, err := svc.Plans(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := planListResponse{Plans: make([]planResponse, 0, len(plansList))}
		for i := range plansList {
			out.Plans = append(out.Plans, planToResponse(&plansList[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func PlanUpsert(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		planID := strings.TrimSpace(chi.URLParam(r, "planId"))
		if planID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required"))
			return
		}

		var payload planUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		interval, err := enums.ParseBillingInterval(strings.ToLower(strings.TrimSpace(payload.Interval)))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid interval"))
			return
		}

		comp := false
		if payload.Complimentary != nil {
			comp = *payload.Complimentary
		}
		plan := &models.BillingPlan{
			ID:            planID,
			Nickname:      strings.TrimSpace(payload.Nickname),
			Interval:      interval,
			Amount:        *payload.Amount,
			Currency:      payload.Currency,
			Complimentary: comp,
		}
		if err := svc.UpsertPlan(ctx, plan); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planToResponse(plan))
	}
}

func PlanDelete(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		planID := strings.TrimSpace(chi.URLParam(r, "planId"))
		if planID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required"))
			return
		}

		if err := svc.DeletePlan(ctx, planID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func planToResponse(plan *models.BillingPlan) planResponse {
	return planResponse{
		ID:            plan.ID,
		Nickname:      plan.Nickname,
		Interval:      string(plan.Interval),
		Amount:        plan.Amount,
		AmountDisplay: planssvc.FormatAmount(plan.Amount),
		Currency:      plan.Currency,
		Complimentary: plan.Complimentary,
		CreatedAt:     plan.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     plan.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
