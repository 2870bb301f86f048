package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zola/internal/models"
	"zola/internal/testutil"
)

func TestUserRepository_SQLite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	users := NewUserRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()

	ana := testutil.CreateUser(t, db, "ana@example.com")
	bob := testutil.CreateUser(t, db, "bob@example.com")
	cyd := testutil.CreateUser(t, db, "cyd@example.com")

	tag := func(name string) models.Tag {
		got, err := tags.GetOrCreate(ctx, name, name)
		require.NoError(t, err)
		return *got
	}
	fantasy, sf, poetry := tag("fantasy"), tag("sf"), tag("poetry")

	require.NoError(t, users.SetTags(ctx, ana, []models.Tag{fantasy, sf}))
	require.NoError(t, users.SetTags(ctx, bob, []models.Tag{fantasy, sf, poetry}))
	require.NoError(t, users.SetTags(ctx, cyd, []models.Tag{poetry}))

	t.Run("Duplicate username", func(t *testing.T) {
		dup := &models.User{Email: "other@example.com", Username: "ana"}
		err := users.Create(ctx, dup)
		col, ok := DuplicateColumn(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, "username", col)
	})

	t.Run("Tag filter is an OR of contains", func(t *testing.T) {
		got, total, err := users.List(ctx, UserFilter{Tags: []string{"fant", "poe"}}, Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Len(t, got, 3)

		got, total, err = users.List(ctx, UserFilter{Tags: []string{"sf"}}, Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Equal(t, "ana", got[0].Username)
	})

	t.Run("Exact username ignores order", func(t *testing.T) {
		name := "bob"
		got, total, err := users.List(ctx, UserFilter{Username: &name, Order: Order{Column: "email", Desc: true}}, Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, bob.ID, got[0].ID)
	})

	t.Run("Order and page", func(t *testing.T) {
		got, total, err := users.List(ctx, UserFilter{Order: Order{Column: "username", Desc: true}}, Page{Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, got, 1)
		assert.Equal(t, "bob", got[0].Username)
	})

	t.Run("Similar users", func(t *testing.T) {
		got, err := users.Similar(ctx, ana.ID, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, bob.ID, got[0].ID)

		got, err = users.Similar(ctx, bob.ID, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ana.ID, got[0].ID)
	})

	t.Run("Partial update", func(t *testing.T) {
		require.NoError(t, users.Update(ctx, ana.ID, map[string]interface{}{"location": "Lyon"}))
		got, err := users.GetByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lyon", got.Location)
		assert.Equal(t, "ana@example.com", got.Email)
		assert.ElementsMatch(t, []string{"fantasy", "sf"}, got.TagNames())
	})

	t.Run("Most common user tags", func(t *testing.T) {
		got, total, err := tags.MostCommon(ctx, TagDomainUsers, "", Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, got, 3)
		// fantasy, poetry and sf are each used twice; ties break on name
		assert.Equal(t, "fantasy", got[0].Name)
		assert.EqualValues(t, 2, got[0].TaggedUsers)

		got, total, err = tags.MostCommon(ctx, TagDomainBooks, "", Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
		assert.Empty(t, got)
	})
}

func TestBookRepository_SQLite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	books := NewBookRepository(db)
	writers := NewWriterRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner@example.com")
	herbert := testutil.CreateWriter(t, db, "Frank Herbert")
	asimov := testutil.CreateWriter(t, db, "Isaac Asimov")

	sf, err := tags.GetOrCreate(ctx, "sf", "sf")
	require.NoError(t, err)
	space, err := tags.GetOrCreate(ctx, "space", "space")
	require.NoError(t, err)

	dune := &models.Book{Title: "Dune", OwnerID: owner.ID, Writers: []models.Writer{*herbert}, Tags: []models.Tag{*sf, *space}}
	require.NoError(t, books.Create(ctx, dune, nil))
	foundation := &models.Book{Title: "Foundation", OwnerID: owner.ID, Writers: []models.Writer{*asimov}, Tags: []models.Tag{*sf}}
	require.NoError(t, books.Create(ctx, foundation, nil))
	plain := testutil.CreateBook(t, db, owner, "Amulet", asimov)

	t.Run("Get preloads associations", func(t *testing.T) {
		got, err := books.GetByID(ctx, dune.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dune", got.Title)
		require.Len(t, got.Writers, 1)
		assert.Equal(t, "Frank Herbert", got.Writers[0].Name)
		assert.ElementsMatch(t, []string{"sf", "space"}, got.TagNames())
		require.NotNil(t, got.Owner)
		assert.Equal(t, owner.ID, got.Owner.ID)
	})

	t.Run("Missing book", func(t *testing.T) {
		_, err := books.GetByID(ctx, 9999)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("Default order is title", func(t *testing.T) {
		got, total, err := books.List(ctx, BookFilter{}, Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Equal(t, []string{"Amulet", "Dune", "Foundation"}, []string{got[0].Title, got[1].Title, got[2].Title})
	})

	t.Run("Order by writer", func(t *testing.T) {
		got, _, err := books.List(ctx, BookFilter{Order: Order{Column: models.BookOrderColumns["writer"], Desc: true}}, Page{})
		require.NoError(t, err)
		assert.Equal(t, "Dune", got[len(got)-1].Title)
	})

	t.Run("Tags filter", func(t *testing.T) {
		got, total, err := books.List(ctx, BookFilter{Tags: []string{"spa"}}, Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, dune.ID, got[0].ID)
	})

	t.Run("Writers are appended", func(t *testing.T) {
		require.NoError(t, books.AddWriters(ctx, plain, []models.Writer{*herbert, *asimov}))
		got, err := books.GetByID(ctx, plain.ID)
		require.NoError(t, err)
		assert.Len(t, got.Writers, 2)
	})

	t.Run("Similar books", func(t *testing.T) {
		got, err := books.Similar(ctx, foundation.ID, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, dune.ID, got[0].ID)
	})

	t.Run("Tag counts", func(t *testing.T) {
		usersCount, booksCount, err := tags.CountUsage(ctx, sf.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, usersCount)
		assert.EqualValues(t, 2, booksCount)

		got, _, err := tags.MostCommon(ctx, TagDomainBooks, "s", Page{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "sf", got[0].Name)
		assert.EqualValues(t, 2, got[0].TaggedBooks)

		one, err := tags.GetByID(ctx, sf.ID)
		require.NoError(t, err)
		assert.Equal(t, "sf", one.Name)
		assert.EqualValues(t, 2, one.TaggedBooks)

		_, err = tags.GetByID(ctx, 9999)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})

	t.Run("Writer filters", func(t *testing.T) {
		frag := "HERB"
		got, total, err := writers.List(ctx, WriterFilter{NameIContains: &frag}, Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, herbert.ID, got[0].ID)

		dup := &models.Writer{Name: "Isaac Asimov"}
		_, ok := DuplicateColumn(writers.Create(ctx, dup))
		assert.True(t, ok)
	})

	t.Run("Attach sets the cover in the same write", func(t *testing.T) {
		book := &models.Book{Title: "Hyperion", OwnerID: owner.ID, Writers: []models.Writer{*herbert}}
		require.NoError(t, books.Create(ctx, book, func(b *models.Book) error {
			cover := b.CoverPath("jpg")
			b.Cover = &cover
			return nil
		}))
		got, err := books.GetByID(ctx, book.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Cover)
		assert.Equal(t, book.CoverPath("jpg"), *got.Cover)
	})

	t.Run("Attach failure rolls the insert back", func(t *testing.T) {
		_, before, err := books.List(ctx, BookFilter{}, Page{})
		require.NoError(t, err)

		book := &models.Book{Title: "Lost", OwnerID: owner.ID, Writers: []models.Writer{*herbert}, Tags: []models.Tag{*sf}}
		err = books.Create(ctx, book, func(*models.Book) error {
			return models.NewInternalError(errors.New("disk full"))
		})
		assert.True(t, models.IsCode(err, models.CodeInternal))

		_, after, err := books.List(ctx, BookFilter{}, Page{})
		require.NoError(t, err)
		assert.Equal(t, before, after)
		var links int64
		require.NoError(t, db.Table("book_writers").Where("book_id = ?", book.ID).Count(&links).Error)
		assert.Zero(t, links)
	})

	t.Run("Change is all or nothing", func(t *testing.T) {
		tags := []models.Tag{}
		err := books.Change(ctx, dune, BookChanges{
			Fields:  map[string]interface{}{"title": "Dune Messiah"},
			Writers: []models.Writer{*asimov},
			Tags:    &tags,
		}, func(*models.Book) error {
			return models.NewInternalError(errors.New("disk full"))
		})
		assert.True(t, models.IsCode(err, models.CodeInternal))

		got, err := books.GetByID(ctx, dune.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dune", got.Title)
		assert.Len(t, got.Writers, 1)
		assert.ElementsMatch(t, []string{"sf", "space"}, got.TagNames())

		require.NoError(t, books.Change(ctx, dune, BookChanges{Fields: map[string]interface{}{"title": "Dune Messiah"}}, nil))
		got, err = books.GetByID(ctx, dune.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dune Messiah", got.Title)

		err = books.Change(ctx, &models.Book{ID: 9999}, BookChanges{Fields: map[string]interface{}{"title": "x"}}, nil)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestTagRepository_SlugCollision(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	tags := NewTagRepository(db)
	ctx := context.Background()

	first, err := tags.GetOrCreate(ctx, "Café", "cafe")
	require.NoError(t, err)
	second, err := tags.GetOrCreate(ctx, "cafe", "cafe")
	require.NoError(t, err)
	again, err := tags.GetOrCreate(ctx, "cafe", "cafe")
	require.NoError(t, err)

	assert.Equal(t, "cafe", first.Slug)
	assert.Equal(t, "cafe_1", second.Slug)
	assert.Equal(t, second.ID, again.ID)
}

func TestReaderRepository_SQLite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	readers := NewReaderRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "reader@example.com")
	book := testutil.CreateBook(t, db, user, "Dune")

	entry := &models.Reader{UserID: user.ID, BookID: book.ID, Status: models.ReaderWish}
	require.NoError(t, readers.Upsert(ctx, entry))
	firstID := entry.ID

	again := &models.Reader{UserID: user.ID, BookID: book.ID, Status: models.ReaderRead}
	require.NoError(t, readers.Upsert(ctx, again))
	assert.Equal(t, firstID, again.ID)
	assert.Equal(t, models.ReaderRead, again.Status)

	status := models.ReaderRead
	got, total, err := readers.List(ctx, ReaderFilter{Status: &status}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.NotNil(t, got[0].Book)
	assert.Equal(t, "Dune", got[0].Book.Title)

	require.NoError(t, readers.Delete(ctx, firstID))
	assert.True(t, models.IsCode(readers.Delete(ctx, firstID), models.CodeNotFound))
}

func TestCommentRepository_SQLite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	comments := NewCommentRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "author@example.com")
	book := testutil.CreateBook(t, db, user, "Dune")
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	add := func(msg string, parent *models.Comment, offset time.Duration) *models.Comment {
		c := &models.Comment{Message: msg, OwnerID: user.ID, ContentID: book.ID, PublicationDate: base.Add(offset)}
		if parent != nil {
			c.ParentID = &parent.ID
		}
		require.NoError(t, comments.Create(ctx, c))
		return c
	}

	a := add("A", nil, 0)
	c := add("C", a, 2*time.Minute)
	b := add("B", a, time.Minute)
	add("D", b, 3*time.Minute)

	all, err := comments.ListByBook(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, all, 4)

	roots := models.LinkChildren(all)
	require.Len(t, roots, 1)
	var msgs []string
	for _, n := range roots[0].Thread(false) {
		msgs = append(msgs, n.Message)
	}
	assert.Equal(t, []string{"B", "D", "C"}, msgs)
	assert.Equal(t, c.ID, roots[0].Children[1].ID)

	got, total, err := comments.List(ctx, CommentFilter{ContentID: &book.ID}, Page{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, got, 2)
}
