package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"zola/internal/models"
)

type tagResolver struct {
	tag *models.TagUsage
}

func (r *tagResolver) ID() graphql.ID     { return nodeID("Tag", uintPK(r.tag.ID)) }
func (r *tagResolver) Pk() string         { return uintPK(r.tag.ID) }
func (r *tagResolver) Name() string       { return r.tag.Name }
func (r *tagResolver) Slug() string       { return r.tag.Slug }
func (r *tagResolver) TaggedUsers() int32 { return int32(r.tag.TaggedUsers) }
func (r *tagResolver) TaggedBooks() int32 { return int32(r.tag.TaggedBooks) }

type tagConnectionResolver struct {
	tags  []models.TagUsage
	w     *window
	total int
}

type tagEdgeResolver struct {
	Node   *tagResolver
	Cursor string
}

func (c *tagConnectionResolver) Edges() []*tagEdgeResolver {
	edges := make([]*tagEdgeResolver, len(c.tags))
	for i := range c.tags {
		edges[i] = &tagEdgeResolver{Node: &tagResolver{tag: &c.tags[i]}, Cursor: c.w.cursor(i)}
	}
	return edges
}

func (c *tagConnectionResolver) PageInfo() *pageInfoResolver {
	return &pageInfoResolver{w: c.w, count: len(c.tags)}
}

func (c *tagConnectionResolver) TotalCount() int32 { return int32(c.total) }

type writerResolver struct {
	writer *models.Writer
}

func (r *writerResolver) ID() graphql.ID { return nodeID("Writer", uintPK(r.writer.ID)) }
func (r *writerResolver) Pk() string     { return uintPK(r.writer.ID) }
func (r *writerResolver) Name() string   { return r.writer.Name }
func (r *writerResolver) Link() *string  { return r.writer.Link }

type writerConnectionResolver struct {
	writers []models.Writer
	w       *window
	total   int
}

type writerEdgeResolver struct {
	Node   *writerResolver
	Cursor string
}

func (c *writerConnectionResolver) Edges() []*writerEdgeResolver {
	edges := make([]*writerEdgeResolver, len(c.writers))
	for i := range c.writers {
		edges[i] = &writerEdgeResolver{Node: &writerResolver{writer: &c.writers[i]}, Cursor: c.w.cursor(i)}
	}
	return edges
}

func (c *writerConnectionResolver) PageInfo() *pageInfoResolver {
	return &pageInfoResolver{w: c.w, count: len(c.writers)}
}

func (c *writerConnectionResolver) TotalCount() int32 { return int32(c.total) }

// readerResolver is a reading-list entry.
type readerResolver struct {
	root   *Resolver
	reader *models.Reader
}

func (r *readerResolver) ID() graphql.ID  { return nodeID("Reader", uintPK(r.reader.ID)) }
func (r *readerResolver) Pk() string      { return uintPK(r.reader.ID) }
func (r *readerResolver) Status() string  { return string(r.reader.Status) }

func (r *readerResolver) User(ctx context.Context) (*userResolver, error) {
	if r.reader.User != nil {
		return &userResolver{root: r.root, user: r.reader.User}, nil
	}
	user, err := r.root.Users.GetByID(ctx, r.reader.UserID)
	if err != nil {
		return nil, err
	}
	return &userResolver{root: r.root, user: user}, nil
}

func (r *readerResolver) Book(ctx context.Context) (*bookResolver, error) {
	if r.reader.Book != nil && len(r.reader.Book.Writers) > 0 {
		return &bookResolver{root: r.root, book: r.reader.Book}, nil
	}
	book, err := r.root.Books.GetByID(ctx, r.reader.BookID)
	if err != nil {
		return nil, err
	}
	return &bookResolver{root: r.root, book: book}, nil
}

type readerConnectionResolver struct {
	root    *Resolver
	readers []models.Reader
	w       *window
	total   int
}

type readerEdgeResolver struct {
	Node   *readerResolver
	Cursor string
}

func (c *readerConnectionResolver) Edges() []*readerEdgeResolver {
	edges := make([]*readerEdgeResolver, len(c.readers))
	for i := range c.readers {
		edges[i] = &readerEdgeResolver{Node: &readerResolver{root: c.root, reader: &c.readers[i]}, Cursor: c.w.cursor(i)}
	}
	return edges
}

func (c *readerConnectionResolver) PageInfo() *pageInfoResolver {
	return &pageInfoResolver{w: c.w, count: len(c.readers)}
}

func (c *readerConnectionResolver) TotalCount() int32 { return int32(c.total) }
