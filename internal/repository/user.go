package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zola/internal/models"
)

// UserFilter narrows a user listing. Username and Tags are mutually exclusive.
type UserFilter struct {
	Username *string
	Tags     []string
	Order    Order
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByActivationKey(ctx context.Context, key uuid.UUID) (*models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	SetTags(ctx context.Context, user *models.User, tags []models.Tag) error
	List(ctx context.Context, filter UserFilter, page Page) ([]models.User, int64, error)
	Similar(ctx context.Context, id uuid.UUID, limit int) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts user as a single statement. A unique violation comes back
// as a *DuplicateError naming the column, so callers can retry with a new
// username or activation key.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Omit("Tags").Create(user).Error
	return writeError("users", "insert", err)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := readDB(r.db).WithContext(ctx).Preload("Tags").Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, readError("User", "users", id, err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(dbError("users", "select", err))
	}
	return &user, nil
}

func (r *userRepository) GetByActivationKey(ctx context.Context, key uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("activation_key = ?", key).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(dbError("users", "select", err))
	}
	return &user, nil
}

func (r *userRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(username) = LOWER(?)", username).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(dbError("users", "count", err))
	}
	return count > 0, nil
}

// Update writes only the given columns. date_updated is always refreshed.
func (r *userRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if _, ok := fields["date_updated"]; !ok {
		fields["date_updated"] = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return writeError("users", "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *userRepository) SetTags(ctx context.Context, user *models.User, tags []models.Tag) error {
	assoc := r.db.WithContext(ctx).Model(user).Association("Tags")
	var err error
	if len(tags) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(tags)
	}
	if err != nil {
		return models.NewInternalError(dbError("user_tags", "replace", err))
	}
	user.Tags = tags
	return nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter, page Page) ([]models.User, int64, error) {
	base := func() *gorm.DB {
		q := readDB(r.db).WithContext(ctx).Model(&models.User{})
		if len(filter.Tags) > 0 {
			sub, args := tagFilter("user_tags", "user_id", filter.Tags)
			q = q.Where("users.id IN ("+sub+")", args...)
		}
		if filter.Username != nil {
			q = q.Where("users.username = ?", *filter.Username)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(dbError("users", "count", err))
	}

	order := filter.Order
	if filter.Username != nil {
		order = Order{}
	}

	var users []models.User
	err := page.apply(base()).
		Order(order.clause("users.username") + ", users.id").
		Preload("Tags").
		Find(&users).Error
	if err != nil {
		return nil, 0, models.NewInternalError(dbError("users", "select", err))
	}
	return users, total, nil
}

// Similar returns other users sharing at least one tag with id, most shared tags first.
func (r *userRepository) Similar(ctx context.Context, id uuid.UUID, limit int) ([]models.User, error) {
	db := readDB(r.db).WithContext(ctx)
	var users []models.User
	q := db.Model(&models.User{}).
		Select("users.*").
		Joins("JOIN user_tags ut ON ut.user_id = users.id").
		Where("ut.tag_id IN (?)", db.Table("user_tags").Select("tag_id").Where("user_id = ?", id)).
		Where("users.id <> ?", id).
		Group("users.id").
		Order("COUNT(ut.tag_id) DESC, users.username")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Preload("Tags").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(dbError("users", "similar", err))
	}
	return users, nil
}
