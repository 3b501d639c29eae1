package members

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rowanpress/members-backend/pkg/db/models"
	"github.com/rowanpress/members-backend/pkg/pagination"
)

// Repository is the persistence surface for member records. Lookup
// methods return (nil, nil) when the row does not exist.
type Repository interface {
	Create(ctx context.Context, member *models.Member) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	Delete(ctx context.Context, id uuid.UUID) error
	// UpdateCustomerEmails rewrites the email on every customer row linked
	// to the member. Used when the member's own email changes.
	UpdateCustomerEmails(ctx context.Context, memberID uuid.UUID, email string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a member repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Member, error) {
	query := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var membersList []models.Member
	if err := query.Find(&membersList).Error; err != nil {
		return nil, err
	}
	return membersList, nil
}

func (r *repository) Update(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Save(member).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Member{}).Error
}

func (r *repository) UpdateCustomerEmails(ctx context.Context, memberID uuid.UUID, email string) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("member_id = ?", memberID).
		Update("email", email).Error
}
