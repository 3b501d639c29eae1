package members

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rowanpress/members-backend/pkg/db"
	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/enums"
	pkgerrors "github.com/rowanpress/members-backend/pkg/errors"
	"github.com/rowanpress/members-backend/pkg/logger"
	"github.com/rowanpress/members-backend/pkg/pagination"
)

// CreateInput carries the fields a new member is created from.
type CreateInput struct {
	Email string
	Name  string
	Note  *string
}

// UpdateInput carries the mutable member fields. Nil pointers leave the
// field untouched.
type UpdateInput struct {
	Email *string
	Name  *string
	Note  *string
}

// Page is one page of members plus the cursor for the next one.
type Page struct {
	Members    []models.Member
	NextCursor string
}

// Service owns member lifecycle. Email changes fan out to the member's
// linked customer rows so the local mirror stays self-consistent.
type Service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("members: repository is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("members: logger is required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Member, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	member := &models.Member{
		Email:  email,
		Name:   strings.TrimSpace(input.Name),
		Note:   input.Note,
		Status: enums.MemberStatusFree,
	}
	if err := s.repo.Create(ctx, member); err != nil {
		if db.IsUniqueViolation(err, "members_email_key") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "member with email %s already exists", email)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create member")
	}
	return member, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up member")
	}
	if member == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "member %s not found", id)
	}
	return member, nil
}

func (s *Service) List(ctx context.Context, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list members")
	}

	page := &Page{Members: rows}
	if len(rows) > limit {
		page.Members = rows[:limit]
		last := page.Members[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

// Update applies the changed fields and compares the email before and
// after explicitly. When it changed, the member's linked customer rows
// get the new email too; the gateway copy catches up on the next link.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Member, error) {
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	emailBefore := member.Email
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if email == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "email cannot be empty")
		}
		member.Email = email
	}
	if input.Name != nil {
		member.Name = strings.TrimSpace(*input.Name)
	}
	if input.Note != nil {
		member.Note = input.Note
	}

	if err := s.repo.Update(ctx, member); err != nil {
		if db.IsUniqueViolation(err, "members_email_key") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "member with email %s already exists", member.Email)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update member")
	}

	if member.Email != emailBefore {
		ctx = s.logg.WithMemberID(ctx, id.String())
		if err := s.repo.UpdateCustomerEmails(ctx, id, member.Email); err != nil {
			// The member row is already updated. Customer rows converge on
			// the next reconciliation pass, so log rather than fail.
			s.logg.Error(ctx, "propagate member email to customers failed", err)
		}
	}
	return member, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete member")
	}
	return nil
}

// SetStatus records the member's standing after a reconciliation outcome.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status enums.MemberStatus) (*models.Member, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid member status %q", status)
	}
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	member.Status = status
	if err := s.repo.Update(ctx, member); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update member status")
	}
	return member, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
