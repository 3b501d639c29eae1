package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rowanpress/members-backend/api/responses"
	"github.com/rowanpress/members-backend/api/validators"
	"github.com/rowanpress/members-backend/internal/reconcile"
	"github.com/rowanpress/members-backend/pkg/db/models"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
	"github.com/rowanpress/members-backend/pkg/logger"
)

// ReconcileEngine describes the reconciliation operations exposed over
// HTTP.
type ReconcileEngine interface {
	LinkCustomer(ctx context.Context, memberID uuid.UUID, customerID string) error
	UpdateSubscriptionCancellation(ctx context.Context, memberID uuid.UUID, subscriptionID string, cancelAtPeriodEnd *bool) (*models.Subscription, error)
	GrantComplimentary(ctx context.Context, memberID uuid.UUID) error
	CancelComplimentary(ctx context.Context, memberID uuid.UUID) ([]reconcile.CancelOutcome, error)
}

type linkCustomerRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

// cancelAtPeriodEnd stays a pointer so an omitted field reaches the
// engine as nil instead of a silent false.
type cancelAtPeriodEndRequest struct {
	CancelAtPeriodEnd *bool `json:"cancel_at_period_end"`
}

type subscriptionResponse struct {
	SubscriptionID     string  `json:"subscription_id"`
	CustomerID         string  `json:"customer_id"`
	Status             string  `json:"status"`
	CancelAtPeriodEnd  bool    `json:"cancel_at_period_end"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
	CurrentPeriodEnd   *string `json:"current_period_end,omitempty"`
	StartDate          *string `json:"start_date,omitempty"`
	CardLast4          *string `json:"card_last4,omitempty"`
	PlanID             string  `json:"plan_id"`
	PlanNickname       string  `json:"plan_nickname"`
	PlanInterval       string  `json:"plan_interval"`
	PlanAmount         int64   `json:"plan_amount"`
	PlanCurrency       string  `json:"plan_currency"`
}

func LinkCustomer(engine ReconcileEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if engine == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine unavailable"))
			return
		}

		memberID, err := memberIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload linkCustomerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := engine.LinkCustomer(ctx, memberID, strings.TrimSpace(payload.CustomerID)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "linked"})
	}
}

func UpdateSubscriptionCancellation(engine ReconcileEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if engine == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine unavailable"))
			return
		}

		memberID, err := memberIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subscriptionID := strings.TrimSpace(chi.URLParam(r, "subscriptionId"))
		if subscriptionID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required"))
			return
		}

		var payload cancelAtPeriodEndRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := engine.UpdateSubscriptionCancellation(ctx, memberID, subscriptionID, payload.CancelAtPeriodEnd)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionToResponse(sub))
	}
}

func GrantComplimentary(engine ReconcileEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if engine == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine unavailable"))
			return
		}

		memberID, err := memberIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := engine.GrantComplimentary(ctx, memberID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "granted"})
	}
}

func CancelComplimentary(engine ReconcileEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if engine == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine unavailable"))
			return
		}

		memberID, err := memberIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcomes, err := engine.CancelComplimentary(ctx, memberID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"outcomes": outcomes})
	}
}

func subscriptionToResponse(sub *models.Subscription) subscriptionResponse {
	out := subscriptionResponse{
		SubscriptionID:     sub.SubscriptionID,
		CustomerID:         sub.CustomerID,
		Status:             string(sub.Status),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CancellationReason: sub.CancellationReason,
		CardLast4:          sub.CardLast4,
		PlanID:             sub.PlanID,
		PlanNickname:       sub.PlanNickname,
		PlanInterval:       sub.PlanInterval,
		PlanAmount:         sub.PlanAmount,
		PlanCurrency:       sub.PlanCurrency,
	}
	if sub.CurrentPeriodEnd != nil {
		formatted := sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		out.CurrentPeriodEnd = &formatted
	}
	if sub.StartDate != nil {
		formatted := sub.StartDate.UTC().Format(time.RFC3339)
		out.StartDate = &formatted
	}
	return out
}
