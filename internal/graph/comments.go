package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"zola/internal/models"
)

type commentResolver struct {
	root    *Resolver
	comment *models.Comment
}

func (r *commentResolver) ID() graphql.ID  { return nodeID("Comment", uintPK(r.comment.ID)) }
func (r *commentResolver) Pk() string      { return uintPK(r.comment.ID) }
func (r *commentResolver) Message() string { return r.comment.Message }

func (r *commentResolver) PublicationDate() graphql.Time {
	return graphql.Time{Time: r.comment.PublicationDate}
}

func (r *commentResolver) Owner(ctx context.Context) (*userResolver, error) {
	if r.comment.Owner != nil {
		return &userResolver{root: r.root, user: r.comment.Owner}, nil
	}
	user, err := r.root.Users.GetByID(ctx, r.comment.OwnerID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &userResolver{root: r.root, user: user}, nil
}

func (r *commentResolver) Content(ctx context.Context) (*bookResolver, error) {
	book, err := r.root.Books.GetByID(ctx, r.comment.ContentID)
	if err != nil {
		return nil, err
	}
	return &bookResolver{root: r.root, book: book}, nil
}

func (r *commentResolver) Parent(ctx context.Context) (*commentResolver, error) {
	if r.comment.ParentID == nil {
		return nil, nil
	}
	parent, err := r.root.Comments.GetByID(ctx, *r.comment.ParentID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commentResolver{root: r.root, comment: parent}, nil
}

// Children lists the whole thread below this comment, depth-first.
func (r *commentResolver) Children(ctx context.Context, args struct{ IncludeSelf bool }) ([]*commentResolver, error) {
	thread, err := r.root.Comments.Thread(ctx, r.comment, args.IncludeSelf)
	if err != nil {
		return nil, err
	}
	return commentResolvers(r.root, thread), nil
}

func commentResolvers(root *Resolver, comments []*models.Comment) []*commentResolver {
	out := make([]*commentResolver, len(comments))
	for i, c := range comments {
		out[i] = &commentResolver{root: root, comment: c}
	}
	return out
}

type commentConnectionResolver struct {
	root     *Resolver
	comments []models.Comment
	w        *window
	total    int
}

type commentEdgeResolver struct {
	Node   *commentResolver
	Cursor string
}

func (c *commentConnectionResolver) Edges() []*commentEdgeResolver {
	edges := make([]*commentEdgeResolver, len(c.comments))
	for i := range c.comments {
		edges[i] = &commentEdgeResolver{
			Node:   &commentResolver{root: c.root, comment: &c.comments[i]},
			Cursor: c.w.cursor(i),
		}
	}
	return edges
}

func (c *commentConnectionResolver) PageInfo() *pageInfoResolver {
	return &pageInfoResolver{w: c.w, count: len(c.comments)}
}

func (c *commentConnectionResolver) TotalCount() int32 { return int32(c.total) }
