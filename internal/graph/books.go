package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"zola/internal/models"
	"zola/internal/repository"
)

type bookResolver struct {
	root *Resolver
	book *models.Book
}

func (r *bookResolver) ID() graphql.ID           { return nodeID("Book", uintPK(r.book.ID)) }
func (r *bookResolver) Pk() string               { return uintPK(r.book.ID) }
func (r *bookResolver) Title() string            { return r.book.Title }
func (r *bookResolver) Description() *string     { return r.book.Description }
func (r *bookResolver) Publisher() *string       { return r.book.Publisher }
func (r *bookResolver) PublicationDate() *string { return r.book.PublicationDate }
func (r *bookResolver) Pages() *string           { return r.book.Pages }
func (r *bookResolver) Isbn() *string            { return r.book.ISBN }
func (r *bookResolver) Tags() []string           { return r.book.TagNames() }

func (r *bookResolver) Genre() *string {
	if r.book.Genre == nil {
		return nil
	}
	g := string(*r.book.Genre)
	return &g
}

func (r *bookResolver) Cover() *string {
	if r.book.Cover == nil || *r.book.Cover == "" {
		return nil
	}
	url := r.root.Books.CoverURL(r.book)
	return &url
}

func (r *bookResolver) CreationDate() graphql.Time {
	return graphql.Time{Time: r.book.CreationDate}
}

func (r *bookResolver) Owner(ctx context.Context) (*userResolver, error) {
	if r.book.Owner != nil {
		return &userResolver{root: r.root, user: r.book.Owner}, nil
	}
	owner, err := r.root.Users.GetByID(ctx, r.book.OwnerID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &userResolver{root: r.root, user: owner}, nil
}

func (r *bookResolver) Writer() []*writerResolver {
	out := make([]*writerResolver, len(r.book.Writers))
	for i := range r.book.Writers {
		out[i] = &writerResolver{writer: &r.book.Writers[i]}
	}
	return out
}

func (r *bookResolver) Reader(ctx context.Context) ([]*readerResolver, error) {
	id := r.book.ID
	readers, _, err := r.root.Readers.List(ctx, repository.ReaderFilter{BookID: &id}, repository.Page{})
	if err != nil {
		return nil, err
	}
	out := make([]*readerResolver, len(readers))
	for i := range readers {
		out[i] = &readerResolver{root: r.root, reader: &readers[i]}
	}
	return out, nil
}

func (r *bookResolver) SimilarBooks(ctx context.Context) ([]*bookResolver, error) {
	books, err := r.root.Books.Similar(ctx, r.book.ID, similarLimit)
	if err != nil {
		return nil, err
	}
	return bookResolvers(r.root, books), nil
}

func (r *bookResolver) Comments(ctx context.Context) ([]*commentResolver, error) {
	roots, err := r.root.Comments.Roots(ctx, r.book.ID)
	if err != nil {
		return nil, err
	}
	return commentResolvers(r.root, roots), nil
}

func bookResolvers(root *Resolver, books []models.Book) []*bookResolver {
	out := make([]*bookResolver, len(books))
	for i := range books {
		out[i] = &bookResolver{root: root, book: &books[i]}
	}
	return out
}

type bookConnectionResolver struct {
	root  *Resolver
	books []models.Book
	w     *window
	total int
}

type bookEdgeResolver struct {
	Node   *bookResolver
	Cursor string
}

func (c *bookConnectionResolver) Edges() []*bookEdgeResolver {
	nodes := bookResolvers(c.root, c.books)
	edges := make([]*bookEdgeResolver, len(nodes))
	for i, n := range nodes {
		edges[i] = &bookEdgeResolver{Node: n, Cursor: c.w.cursor(i)}
	}
	return edges
}

func (c *bookConnectionResolver) PageInfo() *pageInfoResolver {
	return &pageInfoResolver{w: c.w, count: len(c.books)}
}

func (c *bookConnectionResolver) TotalCount() int32 { return int32(c.total) }
