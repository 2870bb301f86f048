package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/validation"
)

// CommentPublisher pushes a new comment to live listeners of its book.
type CommentPublisher interface {
	PublishComment(ctx context.Context, comment *models.Comment) error
}

type CommentService struct {
	comments  repository.CommentRepository
	books     repository.BookRepository
	publisher CommentPublisher
}

type CreateCommentInput struct {
	Message   string `json:"message" validate:"required,max=255"`
	ContentID uint   `json:"content" validate:"required"`
	ParentID  *uint  `json:"parent"`
}

func NewCommentService(comments repository.CommentRepository, books repository.BookRepository, publisher CommentPublisher) *CommentService {
	return &CommentService{comments: comments, books: books, publisher: publisher}
}

func (s *CommentService) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return s.comments.GetByID(ctx, id)
}

func (s *CommentService) List(ctx context.Context, filter repository.CommentFilter, page repository.Page) ([]models.Comment, int64, error) {
	return s.comments.List(ctx, filter, page)
}

// Create posts a comment on a book. A parent must sit on the same book.
// Publishing is best effort: the comment is stored either way.
func (s *CommentService) Create(ctx context.Context, ownerID uuid.UUID, in CreateCommentInput) (*models.Comment, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.books.GetByID(ctx, in.ContentID); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		parent, err := s.comments.GetByID(ctx, *in.ParentID)
		if err != nil {
			if models.IsCode(err, models.CodeNotFound) {
				return nil, models.NewFieldError("parent", "Select a valid choice. That choice is not one of the available choices.")
			}
			return nil, err
		}
		if parent.ContentID != in.ContentID {
			return nil, models.NewFieldError("parent", "The parent comment must belong to the same book.")
		}
	}

	comment := &models.Comment{
		Message:   in.Message,
		OwnerID:   ownerID,
		ContentID: in.ContentID,
		ParentID:  in.ParentID,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	created, err := s.comments.GetByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishComment(ctx, created); err != nil {
			middleware.Logger.WarnContext(ctx, "comment publish failed",
				slog.Uint64("comment_id", uint64(created.ID)), slog.String("error", err.Error()))
		}
	}
	return created, nil
}

// Roots returns the top-level comments of a book with Children linked.
func (s *CommentService) Roots(ctx context.Context, bookID uint) ([]*models.Comment, error) {
	all, err := s.comments.ListByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return models.LinkChildren(all), nil
}

// Thread returns a comment's descendants depth-first in publication order,
// optionally preceded by the comment itself.
func (s *CommentService) Thread(ctx context.Context, comment *models.Comment, includeSelf bool) ([]*models.Comment, error) {
	all, err := s.comments.ListByBook(ctx, comment.ContentID)
	if err != nil {
		return nil, err
	}
	models.LinkChildren(all)
	for _, c := range all {
		if c.ID == comment.ID {
			return c.Thread(includeSelf), nil
		}
	}
	return nil, models.NewNotFoundError("Comment", comment.ID)
}
