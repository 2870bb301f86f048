package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"zola/internal/models"
)

// WriterFilter narrows a writer listing. Empty fields are ignored.
type WriterFilter struct {
	Name          *string
	NameIContains *string
	Link          *string
	LinkIContains *string
}

// WriterRepository defines persistence operations for writers.
type WriterRepository interface {
	Create(ctx context.Context, writer *models.Writer) error
	GetByID(ctx context.Context, id uint) (*models.Writer, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Writer, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	List(ctx context.Context, filter WriterFilter, page Page) ([]models.Writer, int64, error)
}

type writerRepository struct {
	db *gorm.DB
}

// NewWriterRepository returns a new WriterRepository implementation.
func NewWriterRepository(db *gorm.DB) WriterRepository {
	return &writerRepository{db: db}
}

func (r *writerRepository) Create(ctx context.Context, writer *models.Writer) error {
	return writeError("writers", "insert", r.db.WithContext(ctx).Create(writer).Error)
}

func (r *writerRepository) GetByID(ctx context.Context, id uint) (*models.Writer, error) {
	var writer models.Writer
	if err := readDB(r.db).WithContext(ctx).First(&writer, id).Error; err != nil {
		return nil, readError("Writer", "writers", id, err)
	}
	return &writer, nil
}

// GetByIDs returns the writers that exist among ids, in id order.
func (r *writerRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Writer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var writers []models.Writer
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&writers).Error; err != nil {
		return nil, models.NewInternalError(dbError("writers", "select", err))
	}
	return writers, nil
}

func (r *writerRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Writer{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return writeError("writers", "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Writer", id)
	}
	return nil
}

func (r *writerRepository) List(ctx context.Context, filter WriterFilter, page Page) ([]models.Writer, int64, error) {
	base := func() *gorm.DB {
		q := readDB(r.db).WithContext(ctx).Model(&models.Writer{})
		if filter.Name != nil {
			q = q.Where("name = ?", *filter.Name)
		}
		if filter.NameIContains != nil {
			q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(strings.ToLower(*filter.NameIContains)))
		}
		if filter.Link != nil {
			q = q.Where("link = ?", *filter.Link)
		}
		if filter.LinkIContains != nil {
			q = q.Where(`LOWER(link) LIKE ? ESCAPE '\'`, likePattern(strings.ToLower(*filter.LinkIContains)))
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("writers", "count", err))
	}
	var writers []models.Writer
	if err := page.apply(base()).Order("name, id").Find(&writers).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("writers", "select", err))
	}
	return writers, total, nil
}
