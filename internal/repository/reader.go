package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zola/internal/models"
)

// ReaderFilter narrows a reader listing. Nil fields are ignored.
type ReaderFilter struct {
	UserID *uuid.UUID
	BookID *uint
	Status *models.ReaderStatus
}

// ReaderRepository defines persistence operations for reading-list entries.
type ReaderRepository interface {
	Upsert(ctx context.Context, reader *models.Reader) error
	GetByID(ctx context.Context, id uint) (*models.Reader, error)
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter ReaderFilter, page Page) ([]models.Reader, int64, error)
}

type readerRepository struct {
	db *gorm.DB
}

// NewReaderRepository returns a new ReaderRepository implementation.
func NewReaderRepository(db *gorm.DB) ReaderRepository {
	return &readerRepository{db: db}
}

// Upsert creates the (user, book) entry or overwrites its status.
func (r *readerRepository) Upsert(ctx context.Context, reader *models.Reader) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "Book").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status"}),
		}).Create(reader).Error; err != nil {
			return err
		}
		// the conflict path does not report the existing id on every driver
		var stored models.Reader
		if err := tx.Where("user_id = ? AND book_id = ?", reader.UserID, reader.BookID).First(&stored).Error; err != nil {
			return err
		}
		reader.ID, reader.Status = stored.ID, stored.Status
		return nil
	})
	if err != nil {
		return models.NewInternalError(dbError("readers", "upsert", err))
	}
	return nil
}

func (r *readerRepository) GetByID(ctx context.Context, id uint) (*models.Reader, error) {
	var reader models.Reader
	if err := readDB(r.db).WithContext(ctx).Preload("User").Preload("Book").First(&reader, id).Error; err != nil {
		return nil, readError("Reader", "readers", id, err)
	}
	return &reader, nil
}

func (r *readerRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Reader{}, id)
	if res.Error != nil {
		return models.NewInternalError(dbError("readers", "delete", res.Error))
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Reader", id)
	}
	return nil
}

func (r *readerRepository) List(ctx context.Context, filter ReaderFilter, page Page) ([]models.Reader, int64, error) {
	base := func() *gorm.DB {
		q := readDB(r.db).WithContext(ctx).Model(&models.Reader{})
		if filter.UserID != nil {
			q = q.Where("user_id = ?", *filter.UserID)
		}
		if filter.BookID != nil {
			q = q.Where("book_id = ?", *filter.BookID)
		}
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("readers", "count", err))
	}
	var readers []models.Reader
	if err := page.apply(base()).Order("id").Preload("User").Preload("Book").Find(&readers).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("readers", "select", err))
	}
	return readers, total, nil
}
