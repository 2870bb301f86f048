package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	TitleMaxLength       = 150
	DescriptionMaxLength = 5000
	PublisherMaxLength   = 150
	YearMaxLength        = 4
	PagesMaxLength       = 5
	ISBNMaxLength        = 13
	WriterNameMaxLength  = 150
)

// Genre is the literal stored in books.genre.
type Genre string

const (
	GenreSF       Genre = "sf"
	GenreTheatre  Genre = "theatre"
	GenrePoesie   Genre = "poesie"
	GenreNouvelle Genre = "nouvelle"
	GenreBD       Genre = "bd"
	GenreManga    Genre = "manga"
)

// Genres lists the accepted genres with their display labels.
var Genres = []struct {
	Value Genre
	Label string
}{
	{GenreSF, "Science Fiction"},
	{GenreTheatre, "Theatre"},
	{GenrePoesie, "Poésie"},
	{GenreNouvelle, "Nouvelle"},
	{GenreBD, "Bande Dessinée"},
	{GenreManga, "Manga"},
}

// Valid reports whether g is one of the fixed genres.
func (g Genre) Valid() bool {
	for _, known := range Genres {
		if known.Value == g {
			return true
		}
	}
	return false
}

// Book is a catalogue entry owned by the user who created it.
type Book struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"size:150;not null;index:idx_books_title_year,priority:1" json:"title"`
	Description     *string   `gorm:"type:text" json:"description,omitempty"`
	Genre           *Genre    `gorm:"size:150" json:"genre,omitempty"`
	Publisher       *string   `gorm:"size:150" json:"publisher,omitempty"`
	Cover           *string   `json:"cover,omitempty"`
	PublicationDate *string   `gorm:"size:4;index:idx_books_title_year,priority:2" json:"publication_date,omitempty"`
	Pages           *string   `gorm:"size:5" json:"pages,omitempty"`
	ISBN            *string   `gorm:"column:isbn;size:13" json:"isbn,omitempty"`
	OwnerID         uuid.UUID `gorm:"type:uuid;index" json:"owner_id"`
	Owner           *User     `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT;" json:"owner,omitempty"`
	Writers         []Writer  `gorm:"many2many:book_writers;" json:"writers,omitempty"`
	Tags            []Tag     `gorm:"many2many:book_tags;" json:"tags,omitempty"`
	CreationDate    time.Time `gorm:"autoCreateTime" json:"creation_date"`
}

// CoverPath is the storage key of the JPEG cover; the WebP variant sits next to it.
func (b *Book) CoverPath(ext string) string {
	return "cover/" + strconv.FormatUint(uint64(b.ID), 10) + "." + ext
}

func (b *Book) TagNames() []string {
	return tagNames(b.Tags)
}

// BookOrderColumns maps the BookOrderBy enum fields onto columns.
// writer sorts on the first writer's name through a correlated subquery.
var BookOrderColumns = map[string]string{
	"title":           "title",
	"writer":          "(SELECT MIN(w.name) FROM writers w JOIN book_writers bw ON bw.writer_id = w.id WHERE bw.book_id = books.id)",
	"genre":           "genre",
	"publicationDate": "publication_date",
	"owner":           "owner_id",
	"creationDate":    "creation_date",
}

// Writer is a book author. Name is unique.
type Writer struct {
	ID   uint    `gorm:"primaryKey" json:"id"`
	Name string  `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Link *string `json:"link,omitempty"`
}

// ReaderStatus is the reading-list bucket of a Reader entry.
type ReaderStatus string

const (
	ReaderWish ReaderStatus = "wish"
	ReaderRead ReaderStatus = "read"
	ReaderLike ReaderStatus = "like"
)

func (s ReaderStatus) Valid() bool {
	switch s {
	case ReaderWish, ReaderRead, ReaderLike:
		return true
	}
	return false
}

// Reader records a user's status for a book. One row per (user, book).
type Reader struct {
	ID     uint         `gorm:"primaryKey" json:"id"`
	UserID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_readers_user_book" json:"user_id"`
	User   *User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"user,omitempty"`
	BookID uint         `gorm:"not null;uniqueIndex:idx_readers_user_book" json:"book_id"`
	Book   *Book        `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE;" json:"book,omitempty"`
	Status ReaderStatus `gorm:"size:150;not null;default:wish" json:"status"`
}
