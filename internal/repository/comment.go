package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zola/internal/models"
)

// CommentFilter narrows a comment listing. Nil fields are ignored.
type CommentFilter struct {
	OwnerID         *uuid.UUID
	ContentID       *uint
	PublicationDate *time.Time
}

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByBook(ctx context.Context, bookID uint) ([]*models.Comment, error)
	List(ctx context.Context, filter CommentFilter, page Page) ([]models.Comment, int64, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	err := r.db.WithContext(ctx).Omit("Owner", "Content", "Parent").Create(comment).Error
	if err != nil {
		return models.NewInternalError(dbError("comments", "insert", err))
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := readDB(r.db).WithContext(ctx).Preload("Owner").First(&comment, id).Error; err != nil {
		return nil, readError("Comment", "comments", id, err)
	}
	return &comment, nil
}

// ListByBook returns every comment on a book in publication order.
func (r *commentRepository) ListByBook(ctx context.Context, bookID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := readDB(r.db).WithContext(ctx).
		Preload("Owner").
		Where("content_id = ?", bookID).
		Order("publication_date, id").
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(dbError("comments", "select", err))
	}
	return comments, nil
}

func (r *commentRepository) List(ctx context.Context, filter CommentFilter, page Page) ([]models.Comment, int64, error) {
	base := func() *gorm.DB {
		q := readDB(r.db).WithContext(ctx).Model(&models.Comment{})
		if filter.OwnerID != nil {
			q = q.Where("owner_id = ?", *filter.OwnerID)
		}
		if filter.ContentID != nil {
			q = q.Where("content_id = ?", *filter.ContentID)
		}
		if filter.PublicationDate != nil {
			q = q.Where("publication_date = ?", *filter.PublicationDate)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("comments", "count", err))
	}
	var comments []models.Comment
	if err := page.apply(base()).Order("publication_date, id").Preload("Owner").Find(&comments).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("comments", "select", err))
	}
	return comments, total, nil
}
