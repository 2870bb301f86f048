package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"zola/internal/models"
)

// BookFilter narrows a book listing. Title and Tags are mutually exclusive.
type BookFilter struct {
	Title *string
	Tags  []string
	Order Order
}

// BookChanges is one update of a book. Writers are added to the linked
// ones; Tags, when not nil, replaces the set.
type BookChanges struct {
	Fields  map[string]interface{}
	Writers []models.Writer
	Tags    *[]models.Tag
}

// AttachFunc runs inside a book write transaction, after the rows are
// written. It may set book.Cover, which is then persisted. Its error rolls
// the whole write back.
type AttachFunc func(book *models.Book) error

// BookRepository defines persistence operations for books.
type BookRepository interface {
	Create(ctx context.Context, book *models.Book, attach AttachFunc) error
	GetByID(ctx context.Context, id uint) (*models.Book, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	Change(ctx context.Context, book *models.Book, ch BookChanges, attach AttachFunc) error
	AddWriters(ctx context.Context, book *models.Book, writers []models.Writer) error
	SetTags(ctx context.Context, book *models.Book, tags []models.Tag) error
	List(ctx context.Context, filter BookFilter, page Page) ([]models.Book, int64, error)
	Similar(ctx context.Context, id uint, limit int) ([]models.Book, error)
}

type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository returns a new BookRepository implementation.
func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func preloadBook(db *gorm.DB) *gorm.DB {
	return db.Preload("Writers", func(db *gorm.DB) *gorm.DB {
		return db.Order("writers.name")
	}).Preload("Tags").Preload("Owner")
}

// Create inserts the book together with its writer and tag links.
func (r *bookRepository) Create(ctx context.Context, book *models.Book, attach AttachFunc) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		writers, tags := book.Writers, book.Tags
		if err := tx.Omit("Writers", "Tags", "Owner").Create(book).Error; err != nil {
			return err
		}
		if len(writers) > 0 {
			if err := tx.Model(book).Association("Writers").Append(writers); err != nil {
				return err
			}
		}
		if len(tags) > 0 {
			if err := tx.Model(book).Association("Tags").Append(tags); err != nil {
				return err
			}
		}
		book.Writers, book.Tags = writers, tags
		return attachCover(tx, book, attach)
	})
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return writeError("books", "insert", err)
}

func attachCover(tx *gorm.DB, book *models.Book, attach AttachFunc) error {
	if attach == nil {
		return nil
	}
	before := book.Cover
	if err := attach(book); err != nil {
		return err
	}
	if book.Cover == nil || (before != nil && *before == *book.Cover) {
		return nil
	}
	return tx.Model(&models.Book{}).Where("id = ?", book.ID).Update("cover", *book.Cover).Error
}

// Change applies ch to book in one transaction, running attach last.
func (r *bookRepository) Change(ctx context.Context, book *models.Book, ch BookChanges, attach AttachFunc) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		in := &bookRepository{db: tx}
		if err := in.Update(ctx, book.ID, ch.Fields); err != nil {
			return err
		}
		if err := in.AddWriters(ctx, book, ch.Writers); err != nil {
			return err
		}
		if ch.Tags != nil {
			if err := in.SetTags(ctx, book, *ch.Tags); err != nil {
				return err
			}
		}
		return attachCover(tx, book, attach)
	})
	var appErr *models.AppError
	if err == nil || errors.As(err, &appErr) {
		return err
	}
	return writeError("books", "update", err)
}

func (r *bookRepository) GetByID(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	if err := preloadBook(readDB(r.db).WithContext(ctx)).First(&book, id).Error; err != nil {
		return nil, readError("Book", "books", id, err)
	}
	return &book, nil
}

func (r *bookRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return writeError("books", "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Book", id)
	}
	return nil
}

// AddWriters links writers to book, keeping the ones already linked.
func (r *bookRepository) AddWriters(ctx context.Context, book *models.Book, writers []models.Writer) error {
	if len(writers) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(book).Association("Writers").Append(writers); err != nil {
		return models.NewInternalError(dbError("book_writers", "append", err))
	}
	return nil
}

func (r *bookRepository) SetTags(ctx context.Context, book *models.Book, tags []models.Tag) error {
	assoc := r.db.WithContext(ctx).Model(book).Association("Tags")
	var err error
	if len(tags) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(tags)
	}
	if err != nil {
		return models.NewInternalError(dbError("book_tags", "replace", err))
	}
	book.Tags = tags
	return nil
}

func (r *bookRepository) List(ctx context.Context, filter BookFilter, page Page) ([]models.Book, int64, error) {
	base := func() *gorm.DB {
		q := readDB(r.db).WithContext(ctx).Model(&models.Book{})
		if len(filter.Tags) > 0 {
			sub, args := tagFilter("book_tags", "book_id", filter.Tags)
			q = q.Where("books.id IN ("+sub+")", args...)
		}
		if filter.Title != nil {
			q = q.Where("books.title = ?", *filter.Title)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("books", "count", err))
	}

	order := filter.Order
	if filter.Title != nil {
		order = Order{}
	}

	var books []models.Book
	err := preloadBook(page.apply(base())).
		Order(order.clause("books.title, books.publication_date") + ", books.id").
		Find(&books).Error
	if err != nil {
		return nil, 0, models.NewInternalError(dbError("books", "select", err))
	}
	return books, total, nil
}

// Similar returns other books sharing at least one tag with id, most shared tags first.
func (r *bookRepository) Similar(ctx context.Context, id uint, limit int) ([]models.Book, error) {
	db := readDB(r.db).WithContext(ctx)
	var books []models.Book
	q := db.Model(&models.Book{}).
		Select("books.*").
		Joins("JOIN book_tags bt ON bt.book_id = books.id").
		Where("bt.tag_id IN (?)", db.Table("book_tags").Select("tag_id").Where("book_id = ?", id)).
		Where("books.id <> ?", id).
		Group("books.id").
		Order("COUNT(bt.tag_id) DESC, books.title")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := preloadBook(q).Find(&books).Error; err != nil {
		return nil, models.NewInternalError(dbError("books", "similar", err))
	}
	return books, nil
}
