package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"zola/internal/models"
	"zola/internal/repository"
)

type viewerResolver struct {
	root *Resolver
	user *models.User
}

func (v *viewerResolver) ID() graphql.ID {
	if v.user == nil {
		return nodeID("Viewer", "anonymous")
	}
	return nodeID("Viewer", v.user.ID.String())
}

func (v *viewerResolver) IsLoggedIn() bool {
	return v.user != nil
}

func (v *viewerResolver) CurrentUser() *privateUserResolver {
	if v.user == nil {
		return nil
	}
	return &privateUserResolver{root: v.root, user: v.user}
}

type usersArgs struct {
	ConnectionArgs
	OrderBy  *string
	Username *string
	Tags     *[]string
}

func (v *viewerResolver) Users(ctx context.Context, args usersArgs) (*userConnectionResolver, error) {
	filter := repository.UserFilter{
		Username: args.Username,
		Order:    parseOrder(args.OrderBy, models.UserOrderColumns),
	}
	if args.Tags != nil {
		filter.Tags = *args.Tags
	}
	users, w, total, err := fetchWindow(args.ConnectionArgs, func(page repository.Page) ([]models.User, int64, error) {
		return v.root.Users.List(ctx, filter, page)
	})
	if err != nil {
		return nil, err
	}
	return &userConnectionResolver{root: v.root, users: users, w: w, total: total}, nil
}

type booksArgs struct {
	ConnectionArgs
	OrderBy *string
	Title   *string
	Tags    *[]string
}

func (v *viewerResolver) Books(ctx context.Context, args booksArgs) (*bookConnectionResolver, error) {
	filter := repository.BookFilter{
		Title: args.Title,
		Order: parseOrder(args.OrderBy, models.BookOrderColumns),
	}
	if args.Tags != nil {
		filter.Tags = *args.Tags
	}
	books, w, total, err := fetchWindow(args.ConnectionArgs, func(page repository.Page) ([]models.Book, int64, error) {
		return v.root.Books.List(ctx, filter, page)
	})
	if err != nil {
		return nil, err
	}
	return &bookConnectionResolver{root: v.root, books: books, w: w, total: total}, nil
}

type tagsArgs struct {
	ConnectionArgs
	Name *string
}

func (v *viewerResolver) Tags(ctx context.Context, args tagsArgs) (*tagConnectionResolver, error) {
	return v.mostCommon(ctx, repository.TagDomainBooks, args)
}

func (v *viewerResolver) UserTags(ctx context.Context, args tagsArgs) (*tagConnectionResolver, error) {
	return v.mostCommon(ctx, repository.TagDomainUsers, args)
}

func (v *viewerResolver) mostCommon(ctx context.Context, domain repository.TagDomain, args tagsArgs) (*tagConnectionResolver, error) {
	name := ""
	if args.Name != nil {
		name = *args.Name
	}
	all, err := v.root.Tags.MostCommon(ctx, domain, name)
	if err != nil {
		return nil, err
	}
	tags, w, err := sliceWindow(args.ConnectionArgs, all)
	if err != nil {
		return nil, err
	}
	return &tagConnectionResolver{tags: tags, w: w, total: len(all)}, nil
}

type writersArgs struct {
	ConnectionArgs
	Name          *string
	NameIcontains *string
	Link          *string
	LinkIcontains *string
}

func (v *viewerResolver) Writers(ctx context.Context, args writersArgs) (*writerConnectionResolver, error) {
	filter := repository.WriterFilter{
		Name:          args.Name,
		NameIContains: args.NameIcontains,
		Link:          args.Link,
		LinkIContains: args.LinkIcontains,
	}
	writers, w, total, err := fetchWindow(args.ConnectionArgs, func(page repository.Page) ([]models.Writer, int64, error) {
		return v.root.Writers.List(ctx, filter, page)
	})
	if err != nil {
		return nil, err
	}
	return &writerConnectionResolver{writers: writers, w: w, total: total}, nil
}

func (v *viewerResolver) Writer(ctx context.Context, args struct{ ID graphql.ID }) (*writerResolver, error) {
	id, err := parseUintID("id", "Writer", args.ID)
	if err != nil {
		return nil, err
	}
	writer, err := v.root.Writers.GetByID(ctx, id)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &writerResolver{writer: writer}, nil
}

type readersArgs struct {
	ConnectionArgs
	User   *graphql.ID
	Book   *graphql.ID
	Status *string
}

func (v *viewerResolver) Readers(ctx context.Context, args readersArgs) (*readerConnectionResolver, error) {
	var filter repository.ReaderFilter
	if args.User != nil {
		id, err := parseUserID("user", *args.User)
		if err != nil {
			return nil, err
		}
		filter.UserID = &id
	}
	if args.Book != nil {
		id, err := parseUintID("book", "Book", *args.Book)
		if err != nil {
			return nil, err
		}
		filter.BookID = &id
	}
	if args.Status != nil {
		status := models.ReaderStatus(*args.Status)
		filter.Status = &status
	}
	readers, w, total, err := fetchWindow(args.ConnectionArgs, func(page repository.Page) ([]models.Reader, int64, error) {
		return v.root.Readers.List(ctx, filter, page)
	})
	if err != nil {
		return nil, err
	}
	return &readerConnectionResolver{root: v.root, readers: readers, w: w, total: total}, nil
}

type commentsArgs struct {
	ConnectionArgs
	Owner           *graphql.ID
	Content         *graphql.ID
	PublicationDate *graphql.Time
}

func (v *viewerResolver) Comments(ctx context.Context, args commentsArgs) (*commentConnectionResolver, error) {
	var filter repository.CommentFilter
	if args.Owner != nil {
		id, err := parseUserID("owner", *args.Owner)
		if err != nil {
			return nil, err
		}
		filter.OwnerID = &id
	}
	if args.Content != nil {
		id, err := parseUintID("content", "Book", *args.Content)
		if err != nil {
			return nil, err
		}
		filter.ContentID = &id
	}
	if args.PublicationDate != nil {
		at := args.PublicationDate.Time
		filter.PublicationDate = &at
	}
	comments, w, total, err := fetchWindow(args.ConnectionArgs, func(page repository.Page) ([]models.Comment, int64, error) {
		return v.root.Comments.List(ctx, filter, page)
	})
	if err != nil {
		return nil, err
	}
	return &commentConnectionResolver{root: v.root, comments: comments, w: w, total: total}, nil
}
