package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"zola/internal/config"
	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/testutil"
	"zola/internal/validation"
)

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	if _, ok := validation.AsErrors(err); ok {
		return
	}
	assert.True(t, models.IsCode(err, models.CodeValidation), "expected validation error, got %v", err)
}

func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized), "expected unauthorized error, got %v", err)
}

func fieldMessages(t *testing.T, err error, field string) []string {
	t.Helper()
	errs, ok := validation.AsErrors(err)
	require.True(t, ok, "expected field errors, got %v", err)
	for _, fe := range errs {
		if fe.Field == field {
			return fe.Messages
		}
	}
	return nil
}

// testEnv wires every service against one in-memory database.
type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	store    *LocalMediaStore
	images   *ImageService
	tags     *TagService
	users    *UserService
	books    *BookService
	writers  *WriterService
	readers  *ReaderService
	comments *CommentService
	userRepo repository.UserRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	cfg := &config.Config{
		JWTSecret:             "test-secret-key-with-enough-length!!",
		JWTIssuer:             "zola-api",
		JWTAudience:           "zola-client",
		JWTAccessTTLMinutes:   5,
		JWTRefreshTTLDays:     7,
		AccountActivationDays: 7,
		MaxAvatarBytes:        1024 * 1024,
		MaxCoverBytes:         1024 * 1024,
	}

	userRepo := repository.NewUserRepository(db)
	bookRepo := repository.NewBookRepository(db)
	writerRepo := repository.NewWriterRepository(db)

	env := &testEnv{db: db, cfg: cfg, userRepo: userRepo}
	env.store = NewLocalMediaStore(t.TempDir(), "/medias/")
	env.images = NewImageService(env.store, cfg)
	env.tags = NewTagService(repository.NewTagRepository(db))
	env.users = NewUserService(userRepo, env.tags, env.images, cfg.ActivationWindow())
	env.users.hashCost = bcrypt.MinCost
	env.books = NewBookService(bookRepo, writerRepo, env.tags, env.images)
	env.writers = NewWriterService(writerRepo)
	env.readers = NewReaderService(repository.NewReaderRepository(db), bookRepo)
	env.comments = NewCommentService(repository.NewCommentRepository(db), bookRepo, nil)
	return env
}

func ptr[T any](v T) *T { return &v }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
