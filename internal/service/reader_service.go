package service

import (
	"context"

	"github.com/google/uuid"

	"zola/internal/models"
	"zola/internal/repository"
)

// ReaderService manages reading-list entries.
type ReaderService struct {
	readers repository.ReaderRepository
	books   repository.BookRepository
}

func NewReaderService(readers repository.ReaderRepository, books repository.BookRepository) *ReaderService {
	return &ReaderService{readers: readers, books: books}
}

// Set records status for (userID, bookID), replacing any earlier status.
// An empty status means wish.
func (s *ReaderService) Set(ctx context.Context, userID uuid.UUID, bookID uint, status string) (*models.Reader, error) {
	st := models.ReaderWish
	if status != "" {
		st = models.ReaderStatus(status)
	}
	if !st.Valid() {
		return nil, models.NewFieldError("status", "Select a valid choice. Status must be one of wish, read, like.")
	}
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return nil, err
	}

	entry := &models.Reader{UserID: userID, BookID: bookID, Status: st}
	if err := s.readers.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	return s.readers.GetByID(ctx, entry.ID)
}

// Delete removes an entry. Only the user it belongs to may delete it.
func (s *ReaderService) Delete(ctx context.Context, userID uuid.UUID, id uint) error {
	entry, err := s.readers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry.UserID != userID {
		return models.NewUnauthorizedError("You can only delete your own reading list entries")
	}
	return s.readers.Delete(ctx, id)
}

func (s *ReaderService) GetByID(ctx context.Context, id uint) (*models.Reader, error) {
	return s.readers.GetByID(ctx, id)
}

func (s *ReaderService) List(ctx context.Context, filter repository.ReaderFilter, page repository.Page) ([]models.Reader, int64, error) {
	return s.readers.List(ctx, filter, page)
}
