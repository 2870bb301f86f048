// Package seed fills a development database with fake writers, users, books,
// reading lists and comment threads.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/service"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

var tagPool = []string{
	"utopia", "physics", "space", "robots", "time travel", "dystopia", "poetry",
	"romance", "war", "history", "philosophy", "comedy", "horror", "mystery",
	"mythology", "ecology", "cyberpunk", "friendship", "coming of age", "music",
}

// Options sizes a seeding run.
type Options struct {
	Users           int
	Writers         int
	Books           int
	ReadersPerUser  int
	CommentsPerBook int
	// FastHash hashes passwords at bcrypt.MinCost.
	FastHash bool
	// RandSeed makes runs reproducible. Zero picks a random seed.
	RandSeed int64
}

// DefaultOptions is a small but populated catalogue.
func DefaultOptions() Options {
	return Options{
		Users:           30,
		Writers:         20,
		Books:           60,
		ReadersPerUser:  5,
		CommentsPerBook: 3,
	}
}

// Summary counts what a run created.
type Summary struct {
	Users    int
	Writers  int
	Books    int
	Readers  int
	Comments int
}

// Seeder writes fake data through GORM. Tags go through the TagService so
// names and slugs follow the same rules as the API.
type Seeder struct {
	db   *gorm.DB
	opts Options
	fake *gofakeit.Faker
	tags *service.TagService
}

func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{
		db:   db,
		opts: opts,
		fake: gofakeit.New(opts.RandSeed),
		tags: service.NewTagService(repository.NewTagRepository(db)),
	}
}

// ClearAll deletes every row the seeder can create, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	middleware.Logger.Info("Clearing existing data")
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Model(&models.Comment{}).Update("parent_id", nil).Error; err != nil {
			return err
		}
		for _, m := range []interface{}{&models.Comment{}, &models.Reader{}} {
			if err := all.Delete(m).Error; err != nil {
				return err
			}
		}
		for _, join := range []string{"book_writers", "book_tags", "user_tags"} {
			if err := tx.Exec("DELETE FROM " + join).Error; err != nil {
				return err
			}
		}
		for _, m := range []interface{}{&models.Book{}, &models.Writer{}, &models.User{}, &models.Tag{}} {
			if err := all.Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Run seeds the whole catalogue.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	writers, err := s.SeedWriters(ctx, s.opts.Writers)
	if err != nil {
		return nil, fmt.Errorf("failed to seed writers: %w", err)
	}
	users, err := s.SeedUsers(ctx, s.opts.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}
	books, err := s.SeedBooks(ctx, users, writers, s.opts.Books)
	if err != nil {
		return nil, fmt.Errorf("failed to seed books: %w", err)
	}
	readers, err := s.SeedReaders(ctx, users, books, s.opts.ReadersPerUser)
	if err != nil {
		return nil, fmt.Errorf("failed to seed readers: %w", err)
	}
	comments, err := s.SeedComments(ctx, users, books, s.opts.CommentsPerBook)
	if err != nil {
		return nil, fmt.Errorf("failed to seed comments: %w", err)
	}

	summary := &Summary{
		Users:    len(users),
		Writers:  len(writers),
		Books:    len(books),
		Readers:  readers,
		Comments: comments,
	}
	middleware.Logger.Info("Seeding complete",
		slog.Int("users", summary.Users),
		slog.Int("writers", summary.Writers),
		slog.Int("books", summary.Books),
		slog.Int("readers", summary.Readers),
		slog.Int("comments", summary.Comments),
	)
	return summary, nil
}

func (s *Seeder) SeedWriters(ctx context.Context, n int) ([]models.Writer, error) {
	seen := make(map[string]bool, n)
	writers := make([]models.Writer, 0, n)
	for len(writers) < n {
		name := s.fake.Name()
		if seen[name] {
			name = fmt.Sprintf("%s %s", name, s.fake.LastName())
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		writers = append(writers, models.Writer{Name: name})
	}
	if len(writers) == 0 {
		return writers, nil
	}
	if err := s.db.WithContext(ctx).Create(&writers).Error; err != nil {
		return nil, err
	}
	return writers, nil
}

func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]models.User, error) {
	cost := bcrypt.DefaultCost
	if s.opts.FastHash {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, n)
	users := make([]models.User, 0, n)
	for len(users) < n {
		username := s.username()
		if seen[username] {
			continue
		}
		seen[username] = true

		tags, err := s.tags.Resolve(ctx, s.pickTags(0, 3))
		if err != nil {
			return nil, err
		}
		first, last := s.fake.FirstName(), s.fake.LastName()
		users = append(users, models.User{
			ID:               uuid.New(),
			Email:            username + "@example.com",
			Username:         username,
			Password:         string(hash),
			FirstName:        truncate(first, 50),
			LastName:         truncate(last, 50),
			ShortDescription: truncate(s.fake.Sentence(12), 300),
			Location:         s.fake.City(),
			Tags:             tags,
			IsActive:         true,
			ConfirmedEmail:   s.fake.Bool(),
			ActivationKey:    uuid.New(),
		})
	}
	for i := range users {
		if err := s.db.WithContext(ctx).Create(&users[i]).Error; err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (s *Seeder) SeedBooks(ctx context.Context, owners []models.User, writers []models.Writer, n int) ([]models.Book, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	books := make([]models.Book, 0, n)
	for i := 0; i < n; i++ {
		tags, err := s.tags.Resolve(ctx, s.pickTags(1, 3))
		if err != nil {
			return nil, err
		}
		genre := models.Genres[s.fake.Number(0, len(models.Genres)-1)].Value
		book := models.Book{
			Title:           truncate(s.fake.BookTitle(), 150),
			Description:     ptr(s.fake.Paragraph(1, 3, 14, " ")),
			Genre:           &genre,
			Publisher:       ptr(truncate(s.fake.Company(), 150)),
			PublicationDate: ptr(strconv.Itoa(s.fake.Number(1850, 2025))),
			Pages:           ptr(strconv.Itoa(s.fake.Number(60, 1200))),
			ISBN:            ptr(s.fake.Numerify("978##########")),
			OwnerID:         owners[s.fake.Number(0, len(owners)-1)].ID,
			Tags:            tags,
		}
		if len(writers) > 0 {
			count := s.fake.Number(1, min(2, len(writers)))
			for _, idx := range s.distinct(count, len(writers)) {
				book.Writers = append(book.Writers, writers[idx])
			}
		}
		if err := s.db.WithContext(ctx).Create(&book).Error; err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

// SeedReaders gives each user up to perUser distinct books on their reading list.
func (s *Seeder) SeedReaders(ctx context.Context, users []models.User, books []models.Book, perUser int) (int, error) {
	if len(books) == 0 {
		return 0, nil
	}
	statuses := []models.ReaderStatus{models.ReaderWish, models.ReaderRead, models.ReaderLike}
	var readers []models.Reader
	for _, u := range users {
		for _, idx := range s.distinct(min(perUser, len(books)), len(books)) {
			readers = append(readers, models.Reader{
				UserID: u.ID,
				BookID: books[idx].ID,
				Status: statuses[s.fake.Number(0, len(statuses)-1)],
			})
		}
	}
	if len(readers) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&readers, 100).Error; err != nil {
		return 0, err
	}
	return len(readers), nil
}

// SeedComments adds perBook root comments to every book, each with up to two replies.
func (s *Seeder) SeedComments(ctx context.Context, users []models.User, books []models.Book, perBook int) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}
	created := 0
	author := func() uuid.UUID { return users[s.fake.Number(0, len(users)-1)].ID }

	for _, b := range books {
		for i := 0; i < perBook; i++ {
			root := models.Comment{Message: s.message(), OwnerID: author(), ContentID: b.ID}
			if err := s.db.WithContext(ctx).Create(&root).Error; err != nil {
				return created, err
			}
			created++

			for j := s.fake.Number(0, 2); j > 0; j-- {
				reply := models.Comment{Message: s.message(), OwnerID: author(), ContentID: b.ID, ParentID: &root.ID}
				if err := s.db.WithContext(ctx).Create(&reply).Error; err != nil {
					return created, err
				}
				created++
			}
		}
	}
	return created, nil
}

func (s *Seeder) username() string {
	name := strings.ToLower(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s.fake.Username()))
	return truncate(name, 16) + strconv.Itoa(s.fake.Number(100, 999))
}

func (s *Seeder) message() string {
	return truncate(s.fake.Sentence(s.fake.Number(4, 20)), 255)
}

func (s *Seeder) pickTags(lo, hi int) []string {
	idx := s.distinct(s.fake.Number(lo, hi), len(tagPool))
	names := make([]string, len(idx))
	for i, j := range idx {
		names[i] = tagPool[j]
	}
	return names
}

// distinct returns k distinct indexes below n.
func (s *Seeder) distinct(k, n int) []int {
	k = min(k, n)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	s.fake.ShuffleInts(perm)
	return perm[:k]
}

func truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	return strings.TrimSpace(v[:n])
}

func ptr[T any](v T) *T { return &v }
