package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/validation"
)

const (
	maxUsernameAttempts   = 50
	maxActivationAttempts = 5
)

// UserService handles registration, login and profile changes.
type UserService struct {
	users            repository.UserRepository
	tags             *TagService
	images           *ImageService
	activationWindow time.Duration
	hashCost         int
	now              func() time.Time
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required"`
}

// ProfileSettingsInput carries a partial profile update. Nil fields are left
// untouched and an empty string clears the field.
type ProfileSettingsInput struct {
	ShortDescription *string `json:"shortDescription" validate:"omitempty,max=300"`
	Tags             *string `json:"tags"`
	Location         *string `json:"location" validate:"omitempty,max=300"`
	LocationID       *string `json:"locationId" validate:"omitempty,max=100"`
	Avatar           *string `json:"avatar"`
	Email            *string `json:"email" validate:"omitempty,max=254"`
	FirstName        *string `json:"firstName" validate:"omitempty,max=50"`
	LastName         *string `json:"lastName" validate:"omitempty,max=50"`
}

func NewUserService(users repository.UserRepository, tags *TagService, images *ImageService, activationWindow time.Duration) *UserService {
	return &UserService{
		users:            users,
		tags:             tags,
		images:           images,
		activationWindow: activationWindow,
		hashCost:         bcrypt.DefaultCost,
		now:              time.Now,
	}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// List rejects a username filter combined with a tags filter.
func (s *UserService) List(ctx context.Context, filter repository.UserFilter, page repository.Page) ([]models.User, int64, error) {
	if filter.Username != nil && len(filter.Tags) > 0 {
		return nil, 0, models.NewValidationError("The tags and username filters cannot be used together.")
	}
	return s.users.List(ctx, filter, page)
}

func (s *UserService) Similar(ctx context.Context, id uuid.UUID, limit int) ([]models.User, error) {
	return s.users.Similar(ctx, id, limit)
}

// Register creates an account with a generated username, a fresh activation
// key and the default avatar. The username and activation key are claimed by
// inserting: a unique violation moves to the next candidate.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = validation.NormalizeEmail(in.Email)

	var errs validation.Errors
	if err := validation.Struct(in); err != nil {
		fieldErrs, ok := validation.AsErrors(err)
		if !ok {
			return nil, err
		}
		errs = fieldErrs
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			errs.Add("email", "Enter a valid email address.")
		}
	}
	if in.Password != "" {
		if err := validation.ValidatePassword(in.Password); err != nil {
			errs.Add("password", capitalize(err.Error())+".")
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, emailTaken()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		ID:            uuid.New(),
		Email:         in.Email,
		Password:      string(hash),
		IsActive:      true,
		ActivationKey: uuid.New(),
	}
	if err := s.insertWithUsername(ctx, user); err != nil {
		return nil, err
	}

	if rel, err := s.images.DefaultAvatar(ctx, user); err != nil {
		middleware.Logger.ErrorContext(ctx, "default avatar failed",
			slog.String("user_id", user.ID.String()), slog.String("error", err.Error()))
	} else if err := s.users.Update(ctx, user.ID, map[string]interface{}{"avatar": rel}); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "account registered",
		slog.String("user_id", user.ID.String()),
		slog.String("email", user.Email),
		slog.String("activation_key", user.ActivationKey.String()),
		slog.String("confirm_path", "/confirm-email?activation_key="+user.ActivationKey.String()),
	)
	return s.users.GetByID(ctx, user.ID)
}

func (s *UserService) insertWithUsername(ctx context.Context, user *models.User) error {
	base := validation.UsernameBase(user.Email)
	regenerated := 0
	for i := 0; i < maxUsernameAttempts; i++ {
		candidate := validation.UsernameCandidate(base, i)
		if validation.IsBlacklisted(candidate) {
			continue
		}
		taken, err := s.users.UsernameTaken(ctx, candidate)
		if err != nil {
			return err
		}
		if taken {
			continue
		}

		user.Username = candidate
		err = s.users.Create(ctx, user)
		if err == nil {
			return nil
		}
		col, dup := repository.DuplicateColumn(err)
		if !dup {
			return err
		}
		switch col {
		case "username":
		case "activation_key":
			regenerated++
			if regenerated > maxActivationAttempts {
				return models.NewInternalError(err)
			}
			user.ActivationKey = uuid.New()
			i--
		case "email":
			return emailTaken()
		default:
			return models.NewInternalError(err)
		}
	}
	return models.NewInternalError(validation.ErrUsernameExhausted)
}

func emailTaken() *models.AppError {
	return models.NewFieldError("email", "User with this Email already exists.")
}

// Authenticate checks credentials and stamps last_login.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasUsablePassword() || !user.IsActive {
		return nil, models.NewUnauthorizedError(capitalize(models.ErrInvalidCredentials.Error()))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError(capitalize(models.ErrInvalidCredentials.Error()))
	}

	now := s.now()
	if err := s.users.Update(ctx, user.ID, map[string]interface{}{"last_login": now}); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return user, nil
}

// ProfileSettings applies a partial profile update. A new avatar is
// normalized before any column is written, so a rejected image leaves the
// row as it was.
func (s *UserService) ProfileSettings(ctx context.Context, userID uuid.UUID, in ProfileSettingsInput) (*models.User, error) {
	var errs validation.Errors
	if err := validation.Struct(in); err != nil {
		fieldErrs, ok := validation.AsErrors(err)
		if !ok {
			return nil, err
		}
		errs = fieldErrs
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	setString := func(column string, v *string) {
		if v != nil {
			fields[column] = strings.TrimSpace(*v)
		}
	}
	setString("short_description", in.ShortDescription)
	setString("location", in.Location)
	setString("location_id", in.LocationID)
	setString("first_name", in.FirstName)
	setString("last_name", in.LastName)

	if in.Email != nil {
		email := validation.NormalizeEmail(*in.Email)
		switch {
		case email == "":
			errs.Add("email", "This field is required.")
		case validation.ValidateEmail(email) != nil:
			errs.Add("email", "Enter a valid email address.")
		case email != user.Email:
			other, err := s.users.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if other != nil {
				errs.Add("email", "User with this Email already exists.")
			}
			fields["email"] = email
			fields["confirmed_email"] = false
		}
	}

	var tags []models.Tag
	if in.Tags != nil {
		names, err := validation.ParseTags(*in.Tags)
		if err != nil {
			errs.Add("tags", capitalize(err.Error())+".")
		} else if tags, err = s.tags.Resolve(ctx, names); err != nil {
			return nil, err
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var avatar []byte
	if in.Avatar != nil {
		var err error
		if avatar, err = s.images.EncodeAvatar(ctx, user, *in.Avatar); err != nil {
			return nil, err
		}
		if avatar != nil {
			fields["avatar"] = user.AvatarPath()
		}
	}

	if err := s.users.Update(ctx, user.ID, fields); err != nil {
		if _, dup := repository.DuplicateColumn(err); dup {
			return nil, emailTaken()
		}
		return nil, err
	}
	if avatar != nil {
		if _, err := s.images.StoreAvatar(ctx, user, avatar); err != nil {
			return nil, err
		}
	}
	if in.Tags != nil {
		if err := s.users.SetTags(ctx, user, tags); err != nil {
			return nil, err
		}
		s.tags.Invalidate(ctx, repository.TagDomainUsers)
	}
	return s.users.GetByID(ctx, user.ID)
}

// SetPassword changes the password. The old password is only checked when the
// account has a usable one.
func (s *UserService) SetPassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.HasUsablePassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
			return nil, models.NewUnauthorizedError("Incorrect previous password")
		}
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return nil, models.NewFieldError("newPassword", capitalize(err.Error())+".")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.users.Update(ctx, user.ID, map[string]interface{}{"password": string(hash)}); err != nil {
		return nil, err
	}
	user.Password = string(hash)
	return user, nil
}

// ConfirmEmail marks the owner of rawKey as confirmed. It returns one of
// models.ErrActivationMissing, ErrActivationInvalid or ErrActivationExpired
// when the key cannot be used.
func (s *UserService) ConfirmEmail(ctx context.Context, rawKey string) error {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return models.ErrActivationMissing
	}
	key, err := uuid.Parse(rawKey)
	if err != nil {
		return models.ErrActivationInvalid
	}
	user, err := s.users.GetByActivationKey(ctx, key)
	if err != nil {
		return err
	}
	if user == nil {
		return models.ErrActivationInvalid
	}
	if !user.CanConfirmEmail(s.now(), s.activationWindow) {
		return models.ErrActivationExpired
	}
	return s.users.Update(ctx, user.ID, map[string]interface{}{"confirmed_email": true})
}

// IsActivationError reports whether err is one of the ConfirmEmail key failures.
func IsActivationError(err error) bool {
	return errors.Is(err, models.ErrActivationMissing) ||
		errors.Is(err, models.ErrActivationInvalid) ||
		errors.Is(err, models.ErrActivationExpired)
}
