package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/validation"
)

// BookService creates, updates and lists books.
type BookService struct {
	books   repository.BookRepository
	writers repository.WriterRepository
	tags    *TagService
	images  *ImageService
}

type CreateBookInput struct {
	Title           string  `json:"title" validate:"required,max=150"`
	Description     *string `json:"description" validate:"omitempty,max=5000"`
	Genre           *string `json:"genre" validate:"omitempty,genre"`
	Tags            *string `json:"tags"`
	WriterIDs       []uint  `json:"writer"`
	Publisher       *string `json:"publisher" validate:"omitempty,max=150"`
	PublicationDate *string `json:"publicationDate" validate:"omitempty,max=4,numeric"`
	Pages           *string `json:"pages" validate:"omitempty,max=5,numeric"`
	ISBN            *string `json:"isbn" validate:"omitempty,max=13"`
	Cover           *string `json:"cover"`
}

// UpdateBookInput only writes non-empty values. Writers are added to the
// existing ones; Tags replaces the set when present.
type UpdateBookInput struct {
	ID          uint    `json:"pk" validate:"required"`
	Title       *string `json:"title" validate:"omitempty,max=150"`
	WriterIDs   []uint  `json:"writer"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Genre       *string `json:"genre" validate:"omitempty,genre"`
	Tags        *string `json:"tags"`
	ISBN        *string `json:"isbn" validate:"omitempty,max=13"`
	Cover       *string `json:"cover"`
}

func NewBookService(books repository.BookRepository, writers repository.WriterRepository, tags *TagService, images *ImageService) *BookService {
	return &BookService{books: books, writers: writers, tags: tags, images: images}
}

func (s *BookService) GetByID(ctx context.Context, id uint) (*models.Book, error) {
	return s.books.GetByID(ctx, id)
}

// List rejects a title filter combined with a tags filter.
func (s *BookService) List(ctx context.Context, filter repository.BookFilter, page repository.Page) ([]models.Book, int64, error) {
	if filter.Title != nil && len(filter.Tags) > 0 {
		return nil, 0, models.NewValidationError("The tags and title filters cannot be used together.")
	}
	return s.books.List(ctx, filter, page)
}

func (s *BookService) Similar(ctx context.Context, id uint, limit int) ([]models.Book, error) {
	return s.books.Similar(ctx, id, limit)
}

// CoverURL is the public URL of the book's cover, or "" without one.
func (s *BookService) CoverURL(book *models.Book) string {
	if book.Cover == nil {
		return ""
	}
	return s.images.URL(*book.Cover)
}

func collectErrors(err error, errs *validation.Errors) error {
	if err == nil {
		return nil
	}
	fieldErrs, ok := validation.AsErrors(err)
	if !ok {
		return err
	}
	*errs = append(*errs, fieldErrs...)
	return nil
}

func (s *BookService) loadWriters(ctx context.Context, ids []uint, errs *validation.Errors) ([]models.Writer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	unique := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}
	writers, err := s.writers.GetByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(writers) != len(unique) {
		found := make(map[uint]struct{}, len(writers))
		for _, w := range writers {
			found[w.ID] = struct{}{}
		}
		for _, id := range unique {
			if _, ok := found[id]; !ok {
				errs.Add("writer", fmt.Sprintf("Select a valid choice. %d is not one of the available choices.", id))
			}
		}
	}
	return writers, nil
}

func (s *BookService) parseTags(ctx context.Context, raw *string, errs *validation.Errors) ([]models.Tag, error) {
	if raw == nil {
		return nil, nil
	}
	names, err := validation.ParseTags(*raw)
	if err != nil {
		errs.Add("tags", capitalize(err.Error())+".")
		return nil, nil
	}
	return s.tags.Resolve(ctx, names)
}

func nonEmpty(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*v)
	return trimmed, trimmed != ""
}

func optional(v *string) *string {
	if s, ok := nonEmpty(v); ok {
		return &s
	}
	return nil
}

// Create stores a book owned by ownerID. At least one existing writer is required.
func (s *BookService) Create(ctx context.Context, ownerID uuid.UUID, in CreateBookInput) (*models.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	var errs validation.Errors
	if err := collectErrors(validation.Struct(in), &errs); err != nil {
		return nil, err
	}
	if len(in.WriterIDs) == 0 {
		errs.Add("writer", "This field is required.")
	}
	writers, err := s.loadWriters(ctx, in.WriterIDs, &errs)
	if err != nil {
		return nil, err
	}
	tags, err := s.parseTags(ctx, in.Tags, &errs)
	if err != nil {
		return nil, err
	}
	book := &models.Book{
		Title:           in.Title,
		Description:     optional(in.Description),
		Publisher:       optional(in.Publisher),
		PublicationDate: optional(in.PublicationDate),
		Pages:           optional(in.Pages),
		ISBN:            optional(in.ISBN),
		OwnerID:         ownerID,
		Writers:         writers,
		Tags:            tags,
	}
	var cover *EncodedCover
	if upload, ok := nonEmpty(in.Cover); ok {
		if cover, err = s.images.EncodeCover(book, upload); err != nil {
			if err := collectErrors(err, &errs); err != nil {
				return nil, err
			}
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if g, ok := nonEmpty(in.Genre); ok {
		genre := models.Genre(g)
		book.Genre = &genre
	}
	// the cover files need the book id, so they are written inside the insert
	err = s.books.Create(ctx, book, func(b *models.Book) error {
		return s.images.StoreCover(ctx, b, cover)
	})
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		s.tags.Invalidate(ctx, repository.TagDomainBooks)
	}
	return s.books.GetByID(ctx, book.ID)
}

// Update applies the non-empty fields of in to an existing book.
func (s *BookService) Update(ctx context.Context, in UpdateBookInput) (*models.Book, error) {
	var errs validation.Errors
	if err := collectErrors(validation.Struct(in), &errs); err != nil {
		return nil, err
	}
	book, err := s.books.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	writers, err := s.loadWriters(ctx, in.WriterIDs, &errs)
	if err != nil {
		return nil, err
	}
	tags, err := s.parseTags(ctx, in.Tags, &errs)
	if err != nil {
		return nil, err
	}
	var cover *EncodedCover
	if upload, ok := nonEmpty(in.Cover); ok {
		if cover, err = s.images.EncodeCover(book, upload); err != nil {
			if err := collectErrors(err, &errs); err != nil {
				return nil, err
			}
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	ch := repository.BookChanges{Fields: map[string]interface{}{}, Writers: writers}
	if v, ok := nonEmpty(in.Title); ok {
		ch.Fields["title"] = v
	}
	if v, ok := nonEmpty(in.Description); ok {
		ch.Fields["description"] = v
	}
	if v, ok := nonEmpty(in.Genre); ok {
		ch.Fields["genre"] = v
	}
	if v, ok := nonEmpty(in.ISBN); ok {
		ch.Fields["isbn"] = v
	}
	if in.Tags != nil {
		ch.Tags = &tags
	}

	err = s.books.Change(ctx, book, ch, func(b *models.Book) error {
		return s.images.StoreCover(ctx, b, cover)
	})
	if err != nil {
		return nil, err
	}
	if in.Tags != nil {
		s.tags.Invalidate(ctx, repository.TagDomainBooks)
	}
	return s.books.GetByID(ctx, book.ID)
}
