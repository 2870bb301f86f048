package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"zola/internal/models"
)

// TagDomain selects which join table a tag query counts.
type TagDomain string

const (
	TagDomainUsers TagDomain = "users"
	TagDomainBooks TagDomain = "books"
)

func (d TagDomain) joinTable() string {
	if d == TagDomainUsers {
		return "user_tags"
	}
	return "book_tags"
}

const maxSlugAttempts = 50

// TagRepository defines persistence operations for tags.
type TagRepository interface {
	GetOrCreate(ctx context.Context, name, slug string) (*models.Tag, error)
	GetByID(ctx context.Context, id uint) (*models.TagUsage, error)
	MostCommon(ctx context.Context, domain TagDomain, name string, page Page) ([]models.TagUsage, int64, error)
	CountUsage(ctx context.Context, tagID uint) (users, books int64, err error)
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository returns a new TagRepository implementation.
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

// GetOrCreate returns the tag called name, creating it when missing. A slug
// already held by another name gets a numeric suffix.
func (r *tagRepository) GetOrCreate(ctx context.Context, name, slug string) (*models.Tag, error) {
	db := r.db.WithContext(ctx)
	var tag models.Tag
	err := db.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewInternalError(dbError("tags", "select", err))
	}

	for i := 0; i < maxSlugAttempts; i++ {
		candidate := slug
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", slug, i)
		}
		tag = models.Tag{Name: name, Slug: candidate}
		err := db.Create(&tag).Error
		if err == nil {
			return &tag, nil
		}
		col, dup := uniqueViolation(err)
		if !dup {
			return nil, models.NewInternalError(dbError("tags", "insert", err))
		}
		if col == "name" {
			// created concurrently
			if err := db.Where("name = ?", name).First(&tag).Error; err != nil {
				return nil, models.NewInternalError(dbError("tags", "select", err))
			}
			return &tag, nil
		}
	}
	return nil, models.NewInternalError(fmt.Errorf("no free slug for tag %q", name))
}

const usageColumns = "tags.*, " +
	"(SELECT COUNT(*) FROM user_tags ut WHERE ut.tag_id = tags.id) AS tagged_users, " +
	"(SELECT COUNT(*) FROM book_tags bt WHERE bt.tag_id = tags.id) AS tagged_books"

// GetByID loads a tag with its usage counts.
func (r *tagRepository) GetByID(ctx context.Context, id uint) (*models.TagUsage, error) {
	var usages []models.TagUsage
	err := readDB(r.db).WithContext(ctx).Table("tags").
		Select(usageColumns).
		Where("tags.id = ?", id).
		Limit(1).
		Scan(&usages).Error
	if err != nil {
		return nil, models.NewInternalError(dbError("tags", "select", err))
	}
	if len(usages) == 0 {
		return nil, models.NewNotFoundError("Tag", id)
	}
	return &usages[0], nil
}

// MostCommon lists tags used at least once in domain, most used first, then by name.
func (r *tagRepository) MostCommon(ctx context.Context, domain TagDomain, name string, page Page) ([]models.TagUsage, int64, error) {
	base := func() *gorm.DB {
		db := readDB(r.db).WithContext(ctx)
		q := db.Table("tags").
			Where("tags.id IN (?)", db.Table(domain.joinTable()).Select("tag_id"))
		if name != "" {
			q = q.Where(`tags.name LIKE ? ESCAPE '\'`, likePattern(name))
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("tags", "count", err))
	}

	var usages []models.TagUsage
	err := page.apply(base()).
		Select(usageColumns).
		Order("tagged_" + string(domain) + " DESC, tags.name").
		Scan(&usages).Error
	if err != nil {
		return nil, 0, models.NewInternalError(dbError("tags", "select", err))
	}
	return usages, total, nil
}

func (r *tagRepository) CountUsage(ctx context.Context, tagID uint) (int64, int64, error) {
	var usage models.TagUsage
	err := readDB(r.db).WithContext(ctx).Raw(
		"SELECT (SELECT COUNT(*) FROM user_tags WHERE tag_id = ?) AS tagged_users, "+
			"(SELECT COUNT(*) FROM book_tags WHERE tag_id = ?) AS tagged_books",
		tagID, tagID,
	).Scan(&usage).Error
	if err != nil {
		return 0, 0, models.NewInternalError(dbError("tags", "count", err))
	}
	return usage.TaggedUsers, usage.TaggedBooks, nil
}
