// Package graph exposes the services through a schema-first GraphQL API.
package graph

import (
	"context"
	_ "embed"

	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"
	gqlotel "github.com/graph-gophers/graphql-go/trace/otel"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/observability"
	"zola/internal/service"
)

//go:embed schema.graphql
var Schema string

const similarLimit = 20

// Resolver is the root resolver. It carries every dependency the field
// resolvers need.
type Resolver struct {
	Users    *service.UserService
	Books    *service.BookService
	Writers  *service.WriterService
	Readers  *service.ReaderService
	Comments *service.CommentService
	Tags     *service.TagService
	Tokens   *service.TokenService
	Images   *service.ImageService

	// Limiter throttles tokenAuth and createUser per client. Nil disables it.
	Limiter *middleware.Limiter
}

// SchemaOptions tune the executable schema.
type SchemaOptions struct {
	MaxDepth      int
	Introspection bool
}

// NewSchema parses the embedded schema against r. It panics when a resolver
// does not match the schema.
func NewSchema(r *Resolver, opts SchemaOptions) *graphql.Schema {
	schemaOpts := []graphql.SchemaOpt{
		graphql.UseStringDescriptions(),
		graphql.UseFieldResolvers(),
		graphql.Tracer(&gqlotel.Tracer{Tracer: observability.Tracer}),
	}
	if opts.MaxDepth > 0 {
		schemaOpts = append(schemaOpts, graphql.MaxDepth(opts.MaxDepth))
	}
	if !opts.Introspection {
		schemaOpts = append(schemaOpts, graphql.DisableIntrospection())
	}
	return graphql.MustParseSchema(Schema, r, schemaOpts...)
}

func (r *Resolver) Viewer(ctx context.Context) (*viewerResolver, error) {
	v := &viewerResolver{root: r}
	if id, ok := middleware.ViewerID(ctx); ok {
		user, err := r.Users.GetByID(ctx, id)
		switch {
		case err == nil:
			v.user = user
		case !models.IsCode(err, models.CodeNotFound):
			return nil, err
		}
	}
	return v, nil
}

func (r *Resolver) Node(ctx context.Context, args struct{ ID graphql.ID }) (*nodeResolver, error) {
	kind, pk, err := models.ParseGlobalID(string(args.ID))
	if err != nil {
		return nil, nil
	}
	switch kind {
	case "Viewer":
		v, err := r.Viewer(ctx)
		if err != nil {
			return nil, err
		}
		return &nodeResolver{v}, nil
	case "User", "PrivateUser":
		id, err := uuid.Parse(pk)
		if err != nil {
			return nil, nil
		}
		return r.nodeOrNil(func() (node, error) {
			user, err := r.Users.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if kind == "PrivateUser" {
				if viewer, ok := middleware.ViewerID(ctx); !ok || viewer != id {
					return nil, models.NewNotFoundError("User", id)
				}
				return &privateUserResolver{root: r, user: user}, nil
			}
			return &userResolver{root: r, user: user}, nil
		})
	case "Book":
		id, err := parseUintID("id", kind, graphql.ID(pk))
		if err != nil {
			return nil, nil
		}
		return r.nodeOrNil(func() (node, error) {
			book, err := r.Books.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return &bookResolver{root: r, book: book}, nil
		})
	case "Writer":
		id, err := parseUintID("id", kind, graphql.ID(pk))
		if err != nil {
			return nil, nil
		}
		return r.nodeOrNil(func() (node, error) {
			writer, err := r.Writers.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return &writerResolver{writer: writer}, nil
		})
	case "Reader":
		id, err := parseUintID("id", kind, graphql.ID(pk))
		if err != nil {
			return nil, nil
		}
		return r.nodeOrNil(func() (node, error) {
			reader, err := r.Readers.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return &readerResolver{root: r, reader: reader}, nil
		})
	case "Comment":
		id, err := parseUintID("id", kind, graphql.ID(pk))
		if err != nil {
			return nil, nil
		}
		return r.nodeOrNil(func() (node, error) {
			comment, err := r.Comments.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return &commentResolver{root: r, comment: comment}, nil
		})
	case "Tag":
		id, err := parseUintID("id", kind, graphql.ID(pk))
		if err != nil {
			return nil, nil
		}
		return r.nodeOrNil(func() (node, error) {
			tag, err := r.Tags.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return &tagResolver{tag: tag}, nil
		})
	}
	return nil, nil
}

// nodeOrNil turns a miss into a null node, as Relay expects.
func (r *Resolver) nodeOrNil(load func() (node, error)) (*nodeResolver, error) {
	n, err := load()
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &nodeResolver{n}, nil
}

type node interface {
	ID() graphql.ID
}

type nodeResolver struct {
	node
}

func (r *nodeResolver) ToViewer() (*viewerResolver, bool) {
	n, ok := r.node.(*viewerResolver)
	return n, ok
}

func (r *nodeResolver) ToUser() (*userResolver, bool) {
	n, ok := r.node.(*userResolver)
	return n, ok
}

func (r *nodeResolver) ToPrivateUser() (*privateUserResolver, bool) {
	n, ok := r.node.(*privateUserResolver)
	return n, ok
}

func (r *nodeResolver) ToBook() (*bookResolver, bool) {
	n, ok := r.node.(*bookResolver)
	return n, ok
}

func (r *nodeResolver) ToTag() (*tagResolver, bool) {
	n, ok := r.node.(*tagResolver)
	return n, ok
}

func (r *nodeResolver) ToWriter() (*writerResolver, bool) {
	n, ok := r.node.(*writerResolver)
	return n, ok
}

func (r *nodeResolver) ToReader() (*readerResolver, bool) {
	n, ok := r.node.(*readerResolver)
	return n, ok
}

func (r *nodeResolver) ToComment() (*commentResolver, bool) {
	n, ok := r.node.(*commentResolver)
	return n, ok
}
