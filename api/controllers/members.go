package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rowanpress/members-backend/api/responses"
	"github.com/rowanpress/members-backend/api/validators"
	"github.com/rowanpress/members-backend/internal/members"
	"github.com/rowanpress/members-backend/pkg/db/models"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
	"github.com/rowanpress/members-backend/pkg/logger"
	"github.com/rowanpress/members-backend/pkg/pagination"
)

// MemberService describes the member lifecycle methods used by the HTTP
// controllers.
type MemberService interface {
	Create(ctx context.Context, input members.CreateInput) (*models.Member, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Member, error)
	List(ctx context.Context, params pagination.Params) (*members.Page, error)
	Update(ctx context.Context, id uuid.UUID, input members.UpdateInput) (*models.Member, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memberResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Note      *string `json:"note,omitempty"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type memberListResponse struct {
	Members    []memberResponse `json:"members"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type memberCreateRequest struct {
	Email string  `json:"email" validate:"required,email"`
	Name  string  `json:"name" validate:"max=191"`
	Note  *string `json:"note"`
}

type memberUpdateRequest struct {
	Email *string `json:"email" validate:"omitempty,email"`
	Name  *string `json:"name" validate:"omitempty,max=191"`
	Note  *string `json:"note"`
}

func MemberCreate(svc MemberService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		var payload memberCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		member, err := svc.Create(ctx, members.CreateInput{
			Email: payload.Email,
			Name:  payload.Name,
			Note:  payload.Note,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, memberToResponse(member))
	}
}

func MemberDetail(svc MemberService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		memberID, err := memberIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		member, err := svc.Get(ctx, memberID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, memberToResponse(member))
	}
}

func MemberList(svc MemberService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid limit"))
				return
			}
			limit = parsed
		}

		page, err := svc.List(ctx, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := memberListResponse{
			Members:    make([]memberResponse, 0, len(page.Members)),
			NextCursor: page.NextCursor,
		}
		for i := range page.Members {
			out.Members = append(out.Members, memberToResponse(&page.Members[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func MemberUpdate(svc MemberService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		memberID, err := memberIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload memberUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		member, err := svc.Update(ctx, memberID, members.UpdateInput{
			Email: payload.Email,
			Name:  payload.Name,
			Note:  payload.Note,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, memberToResponse(member))
	}
}

func MemberDelete(svc MemberService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		memberID, err := memberIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, memberID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func memberIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "memberId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid member id")
	}
	return id, nil
}

func memberToResponse(member *models.Member) memberResponse {
	return memberResponse{
		ID:        member.ID.String(),
		Email:     member.Email,
		Name:      member.Name,
		Note:      member.Note,
		Status:    string(member.Status),
		CreatedAt: member.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: member.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
