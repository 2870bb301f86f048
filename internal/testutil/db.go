// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"zola/internal/database"
	"zola/internal/models"
)

// NewSQLiteDB opens a private in-memory database with the full schema migrated.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user with the given email and a derived username.
func CreateUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:            uuid.New(),
		Email:         email,
		Username:      email[:min(len(email), 20)],
		ActivationKey: uuid.New(),
		IsActive:      true,
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		user.Username = email[:min(at, 20)]
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateWriter inserts a writer.
func CreateWriter(t *testing.T, db *gorm.DB, name string) *models.Writer {
	t.Helper()
	w := &models.Writer{Name: name}
	require.NoError(t, db.Create(w).Error)
	return w
}

// CreateBook inserts a book owned by owner and written by writers.
func CreateBook(t *testing.T, db *gorm.DB, owner *models.User, title string, writers ...*models.Writer) *models.Book {
	t.Helper()
	book := &models.Book{Title: title, OwnerID: owner.ID}
	for _, w := range writers {
		book.Writers = append(book.Writers, *w)
	}
	require.NoError(t, db.Create(book).Error)
	return book
}
