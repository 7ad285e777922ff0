package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/PowerLink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkUpdate carries the mutable fields of a link. Nil fields are left as is.
// A non-nil CustomDomain pointing at an empty string clears the domain.
type LinkUpdate struct {
	OriginalURL  *string
	CustomDomain *string
}

// Empty reports whether the update changes nothing.
func (u LinkUpdate) Empty() bool {
	return u.OriginalURL == nil && u.CustomDomain == nil
}

// LinkRepository defines the data access contract for short links.
// Owner-scoped calls treat rows of other owners as missing.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	GetByID(ctx context.Context, id uint64, ownerID *uint64) (*model.Link, error)
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.Link, error)
	Update(ctx context.Context, id, ownerID uint64, upd LinkUpdate) (*model.Link, error)
	Delete(ctx context.Context, id, ownerID uint64) (*model.Link, error)
	IncrementClicks(ctx context.Context, id uint64) error
	// CodeExists checks whether code is persisted. With lock set the matching
	// row is held FOR UPDATE until the surrounding transaction ends.
	CodeExists(ctx context.Context, code string, lock bool) (bool, error)
	WithTx(ctx context.Context, fn func(LinkRepository) error) error
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrShortCodeTaken
		}
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

func (r *linkRepository) GetByID(ctx context.Context, id uint64, ownerID *uint64) (*model.Link, error) {
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if ownerID != nil {
		q = q.Where("user_id = ?", *ownerID)
	}

	var link model.Link
	if err := q.First(&link).Error; err != nil {
		return nil, notFound(err, "get link by id")
	}
	return &link, nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error; err != nil {
		return nil, notFound(err, "get link by code")
	}
	return &link, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Link, error) {
	result := make([]model.Link, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&result).Error; err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return result, nil
}

func (r *linkRepository) Update(ctx context.Context, id, ownerID uint64, upd LinkUpdate) (*model.Link, error) {
	if upd.Empty() {
		return r.GetByID(ctx, id, &ownerID)
	}

	changes := make(map[string]any, 2)
	if upd.OriginalURL != nil {
		changes["original_url"] = *upd.OriginalURL
	}
	if upd.CustomDomain != nil {
		if *upd.CustomDomain == "" {
			changes["custom_domain"] = nil
		} else {
			changes["custom_domain"] = *upd.CustomDomain
		}
	}

	var updated []model.Link
	result := r.db.WithContext(ctx).
		Model(&updated).
		Clauses(clause.Returning{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(changes)
	if result.Error != nil {
		return nil, fmt.Errorf("update link: %w", result.Error)
	}
	if result.RowsAffected == 0 || len(updated) == 0 {
		return nil, ErrLinkNotFound
	}
	return &updated[0], nil
}

func (r *linkRepository) Delete(ctx context.Context, id, ownerID uint64) (*model.Link, error) {
	var deleted []model.Link
	result := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&deleted)
	if result.Error != nil {
		return nil, fmt.Errorf("delete link: %w", result.Error)
	}
	if result.RowsAffected == 0 || len(deleted) == 0 {
		return nil, ErrLinkNotFound
	}
	return &deleted[0], nil
}

func (r *linkRepository) IncrementClicks(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ?", id).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("increment clicks: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) CodeExists(ctx context.Context, code string, lock bool) (bool, error) {
	q := r.db.WithContext(ctx).Model(&model.Link{}).Select("id").Where("short_code = ?", code)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var ids []uint64
	if err := q.Limit(1).Find(&ids).Error; err != nil {
		return false, fmt.Errorf("check short code: %w", err)
	}
	return len(ids) > 0, nil
}

func (r *linkRepository) WithTx(ctx context.Context, fn func(LinkRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&linkRepository{db: tx})
	})
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrLinkNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
