package models

// Tag is shared between users (user_tags) and books (book_tags).
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Slug string `gorm:"size:100;uniqueIndex;not null" json:"slug"`
}

// TagUsage is a tag with its usage counts, as returned by the most-common queries.
type TagUsage struct {
	Tag
	TaggedUsers int64 `gorm:"->" json:"tagged_users"`
	TaggedBooks int64 `gorm:"->" json:"tagged_books"`
}

func tagNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}
