package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"zola/internal/models"
)

// userResolver is the public view of an account.
type userResolver struct {
	root *Resolver
	user *models.User
}

func (r *userResolver) ID() graphql.ID           { return nodeID("User", r.user.ID.String()) }
func (r *userResolver) Pk() string               { return r.user.ID.String() }
func (r *userResolver) Username() string         { return r.user.Username }
func (r *userResolver) ShortDescription() string { return r.user.ShortDescription }
func (r *userResolver) Tags() []string           { return r.user.TagNames() }
func (r *userResolver) Location() string         { return r.user.Location }
func (r *userResolver) LocationId() string       { return r.user.LocationID }
func (r *userResolver) FirstName() string        { return r.user.FirstName }
func (r *userResolver) LastName() string         { return r.user.LastName }
func (r *userResolver) Avatar() string           { return r.root.Images.URL(r.user.Avatar) }

func (r *userResolver) SimilarUsers(ctx context.Context) ([]*userResolver, error) {
	users, err := r.root.Users.Similar(ctx, r.user.ID, similarLimit)
	if err != nil {
		return nil, err
	}
	return userResolvers(r.root, users), nil
}

func userResolvers(root *Resolver, users []models.User) []*userResolver {
	out := make([]*userResolver, len(users))
	for i := range users {
		out[i] = &userResolver{root: root, user: &users[i]}
	}
	return out
}

// privateUserResolver is the account as its owner sees it.
type privateUserResolver struct {
	root *Resolver
	user *models.User
}

func (r *privateUserResolver) public() *userResolver {
	return &userResolver{root: r.root, user: r.user}
}

func (r *privateUserResolver) ID() graphql.ID           { return nodeID("PrivateUser", r.user.ID.String()) }
func (r *privateUserResolver) Pk() string               { return r.user.ID.String() }
func (r *privateUserResolver) Email() string            { return r.user.Email }
func (r *privateUserResolver) Username() string         { return r.user.Username }
func (r *privateUserResolver) ShortDescription() string { return r.user.ShortDescription }
func (r *privateUserResolver) Tags() []string           { return r.user.TagNames() }
func (r *privateUserResolver) Location() string         { return r.user.Location }
func (r *privateUserResolver) LocationId() string       { return r.user.LocationID }
func (r *privateUserResolver) FirstName() string        { return r.user.FirstName }
func (r *privateUserResolver) LastName() string         { return r.user.LastName }
func (r *privateUserResolver) Avatar() string           { return r.public().Avatar() }
func (r *privateUserResolver) IsStaff() bool            { return r.user.IsStaff }
func (r *privateUserResolver) IsSuperuser() bool        { return r.user.IsSuperuser }
func (r *privateUserResolver) ConfirmedEmail() bool     { return r.user.ConfirmedEmail }
func (r *privateUserResolver) HasPassword() bool        { return r.user.HasUsablePassword() }

func (r *privateUserResolver) DateJoined() graphql.Time {
	return graphql.Time{Time: r.user.DateJoined}
}

func (r *privateUserResolver) DateUpdated() graphql.Time {
	return graphql.Time{Time: r.user.DateUpdated}
}

type userConnectionResolver struct {
	root  *Resolver
	users []models.User
	w     *window
	total int
}

type userEdgeResolver struct {
	Node   *userResolver
	Cursor string
}

func (c *userConnectionResolver) Edges() []*userEdgeResolver {
	nodes := userResolvers(c.root, c.users)
	edges := make([]*userEdgeResolver, len(nodes))
	for i, n := range nodes {
		edges[i] = &userEdgeResolver{Node: n, Cursor: c.w.cursor(i)}
	}
	return edges
}

func (c *userConnectionResolver) PageInfo() *pageInfoResolver {
	return &pageInfoResolver{w: c.w, count: len(c.users)}
}

func (c *userConnectionResolver) TotalCount() int32 { return int32(c.total) }
