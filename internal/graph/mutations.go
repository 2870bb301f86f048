package graph

import (
	"context"

	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/service"
)

type tokenPayload struct {
	Email   string
	Exp     float64
	OrigIat float64
}

func newTokenPayload(p service.Payload) *tokenPayload {
	return &tokenPayload{Email: p.Email, Exp: float64(p.Exp), OrigIat: float64(p.OrigIat)}
}

func (r *Resolver) allow(ctx context.Context, resource string) error {
	if !r.Limiter.Allow(ctx, resource) {
		return models.NewRateLimitError()
	}
	return nil
}

type createUserInput struct {
	Email            string
	Password         string
	ClientMutationId *string
}

type createUserPayload struct {
	User             *privateUserResolver
	Errors           []*formError
	ClientMutationId *string
}

func (r *Resolver) CreateUser(ctx context.Context, args struct{ Input createUserInput }) (*createUserPayload, error) {
	if err := r.allow(ctx, "createUser"); err != nil {
		return nil, err
	}
	out := &createUserPayload{ClientMutationId: args.Input.ClientMutationId}
	user, err := r.Users.Register(ctx, service.RegisterInput{Email: args.Input.Email, Password: args.Input.Password})
	if out.Errors, err = formErrors(err); err != nil {
		return nil, err
	}
	if user != nil {
		out.User = &privateUserResolver{root: r, user: user}
	}
	return out, nil
}

type profileSettingsInput struct {
	ShortDescription *string
	Tags             *string
	Location         *string
	LocationId       *string
	Avatar           *string
	Email            *string
	FirstName        *string
	LastName         *string
	ClientMutationId *string
}

type userPayload struct {
	User             *privateUserResolver
	Errors           []*formError
	ClientMutationId *string
}

func (r *Resolver) userPayload(user *models.User, err error, clientMutationID *string) (*userPayload, error) {
	out := &userPayload{ClientMutationId: clientMutationID}
	if out.Errors, err = formErrors(err); err != nil {
		return nil, err
	}
	if user != nil {
		out.User = &privateUserResolver{root: r, user: user}
	}
	return out, nil
}

func (r *Resolver) ProfileSettings(ctx context.Context, args struct{ Input profileSettingsInput }) (*userPayload, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	in := args.Input
	user, err := r.Users.ProfileSettings(ctx, viewer, service.ProfileSettingsInput{
		ShortDescription: in.ShortDescription,
		Tags:             in.Tags,
		Location:         in.Location,
		LocationID:       in.LocationId,
		Avatar:           in.Avatar,
		Email:            in.Email,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
	})
	return r.userPayload(user, err, in.ClientMutationId)
}

type setPasswordInput struct {
	OldPassword      *string
	NewPassword      string
	ClientMutationId *string
}

func (r *Resolver) SetPassword(ctx context.Context, args struct{ Input setPasswordInput }) (*userPayload, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	old := ""
	if args.Input.OldPassword != nil {
		old = *args.Input.OldPassword
	}
	user, err := r.Users.SetPassword(ctx, viewer, old, args.Input.NewPassword)
	return r.userPayload(user, err, args.Input.ClientMutationId)
}

type tokenAuthInput struct {
	Email            string
	Password         string
	ClientMutationId *string
}

type tokenAuthPayload struct {
	Token            string
	RefreshToken     string
	Payload          *tokenPayload
	RefreshExpiresIn float64
	User             *privateUserResolver
	ClientMutationId *string
}

func (r *Resolver) TokenAuth(ctx context.Context, args struct{ Input tokenAuthInput }) (*tokenAuthPayload, error) {
	if err := r.allow(ctx, "tokenAuth"); err != nil {
		return nil, err
	}
	user, err := r.Users.Authenticate(ctx, args.Input.Email, args.Input.Password)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("Please enter valid credentials")
		}
		return nil, err
	}
	pair, err := r.Tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	return &tokenAuthPayload{
		Token:            pair.Token,
		RefreshToken:     pair.RefreshToken,
		Payload:          newTokenPayload(pair.Payload),
		RefreshExpiresIn: float64(pair.RefreshExpiresIn),
		User:             &privateUserResolver{root: r, user: user},
		ClientMutationId: args.Input.ClientMutationId,
	}, nil
}

type verifyInput struct {
	Token            string
	ClientMutationId *string
}

type verifyPayload struct {
	Payload          *tokenPayload
	User             *privateUserResolver
	ClientMutationId *string
}

func (r *Resolver) VerifyToken(ctx context.Context, args struct{ Input verifyInput }) (*verifyPayload, error) {
	payload, err := r.Tokens.Verify(ctx, args.Input.Token)
	if err != nil {
		return nil, err
	}
	out := &verifyPayload{Payload: newTokenPayload(*payload), ClientMutationId: args.Input.ClientMutationId}
	user, err := r.Users.GetByID(ctx, payload.UserID)
	switch {
	case err == nil:
		out.User = &privateUserResolver{root: r, user: user}
	case !models.IsCode(err, models.CodeNotFound):
		return nil, err
	}
	return out, nil
}

type refreshInput struct {
	RefreshToken     string
	ClientMutationId *string
}

type refreshPayload struct {
	Token            string
	RefreshToken     string
	Payload          *tokenPayload
	RefreshExpiresIn float64
	ClientMutationId *string
}

func (r *Resolver) RefreshToken(ctx context.Context, args struct{ Input refreshInput }) (*refreshPayload, error) {
	pair, err := r.Tokens.Refresh(ctx, args.Input.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &refreshPayload{
		Token:            pair.Token,
		RefreshToken:     pair.RefreshToken,
		Payload:          newTokenPayload(pair.Payload),
		RefreshExpiresIn: float64(pair.RefreshExpiresIn),
		ClientMutationId: args.Input.ClientMutationId,
	}, nil
}

type revokeInput struct {
	RefreshToken     string
	ClientMutationId *string
}

type revokePayload struct {
	Revoked          bool
	ClientMutationId *string
}

// RevokeToken drops the refresh token and, when the request carries one, the
// access token it was sent with.
func (r *Resolver) RevokeToken(ctx context.Context, args struct{ Input revokeInput }) (*revokePayload, error) {
	revoked, err := r.Tokens.Revoke(ctx, args.Input.RefreshToken)
	if err != nil {
		return nil, err
	}
	if access := middleware.AccessToken(ctx); access != "" {
		if err := r.Tokens.RevokeAccess(ctx, access); err != nil {
			return nil, err
		}
	}
	return &revokePayload{Revoked: revoked, ClientMutationId: args.Input.ClientMutationId}, nil
}

type createBookInput struct {
	Title            string
	Description      *string
	Genre            *string
	Tags             *string
	Writer           []graphql.ID
	Publisher        *string
	PublicationDate  *string
	Pages            *string
	Isbn             *string
	Cover            *string
	ClientMutationId *string
}

type bookPayload struct {
	Book             *bookResolver
	Errors           []*formError
	ClientMutationId *string
}

func (r *Resolver) bookPayload(book *models.Book, err error, clientMutationID *string) (*bookPayload, error) {
	out := &bookPayload{ClientMutationId: clientMutationID}
	if out.Errors, err = formErrors(err); err != nil {
		return nil, err
	}
	if book != nil {
		out.Book = &bookResolver{root: r, book: book}
	}
	return out, nil
}

func parseWriterIDs(ids []graphql.ID) ([]uint, error) {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		pk, err := parseUintID("writer", "Writer", id)
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, nil
}

func (r *Resolver) CreateBook(ctx context.Context, args struct{ Input createBookInput }) (*bookPayload, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	in := args.Input
	writers, err := parseWriterIDs(in.Writer)
	if err != nil {
		return r.bookPayload(nil, err, in.ClientMutationId)
	}
	book, err := r.Books.Create(ctx, viewer, service.CreateBookInput{
		Title:           in.Title,
		Description:     in.Description,
		Genre:           in.Genre,
		Tags:            in.Tags,
		WriterIDs:       writers,
		Publisher:       in.Publisher,
		PublicationDate: in.PublicationDate,
		Pages:           in.Pages,
		ISBN:            in.Isbn,
		Cover:           in.Cover,
	})
	return r.bookPayload(book, err, in.ClientMutationId)
}

type updateBookInput struct {
	Pk               graphql.ID
	Title            *string
	Writer           *[]graphql.ID
	Description      *string
	Genre            *string
	Tags             *string
	Isbn             *string
	Cover            *string
	ClientMutationId *string
}

func (r *Resolver) UpdateBook(ctx context.Context, args struct{ Input updateBookInput }) (*bookPayload, error) {
	if _, err := requireViewer(ctx); err != nil {
		return nil, err
	}
	in := args.Input
	id, err := parseUintID("pk", "Book", in.Pk)
	if err != nil {
		return r.bookPayload(nil, err, in.ClientMutationId)
	}
	var writers []uint
	if in.Writer != nil {
		if writers, err = parseWriterIDs(*in.Writer); err != nil {
			return r.bookPayload(nil, err, in.ClientMutationId)
		}
	}
	book, err := r.Books.Update(ctx, service.UpdateBookInput{
		ID:          id,
		Title:       in.Title,
		WriterIDs:   writers,
		Description: in.Description,
		Genre:       in.Genre,
		Tags:        in.Tags,
		ISBN:        in.Isbn,
		Cover:       in.Cover,
	})
	return r.bookPayload(book, err, in.ClientMutationId)
}

type createWriterPayload struct {
	Writer *writerResolver
}

func (r *Resolver) CreateWriter(ctx context.Context, args struct {
	Name     *string
	Link     *string
	WriterId *string
}) (*createWriterPayload, error) {
	if _, err := requireViewer(ctx); err != nil {
		return nil, err
	}
	in := service.SaveWriterInput{Name: args.Name, Link: args.Link}
	if args.WriterId != nil && *args.WriterId != "" {
		id, err := parseUintID("writerId", "Writer", graphql.ID(*args.WriterId))
		if err != nil {
			return nil, err
		}
		in.WriterID = &id
	}
	writer, err := r.Writers.Save(ctx, in)
	if err != nil {
		return nil, err
	}
	return &createWriterPayload{Writer: &writerResolver{writer: writer}}, nil
}

type createReaderPayload struct {
	Book   *bookResolver
	User   *userResolver
	Status *string
}

func (r *Resolver) CreateReader(ctx context.Context, args struct {
	BookId int32
	Status *string
}) (*createReaderPayload, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	if args.BookId <= 0 {
		return nil, models.NewFieldError("bookId", "Invalid Book id.")
	}
	status := ""
	if args.Status != nil {
		status = *args.Status
	}
	entry, err := r.Readers.Set(ctx, viewer, uint(args.BookId), status)
	if err != nil {
		return nil, err
	}
	book, err := r.Books.GetByID(ctx, entry.BookID)
	if err != nil {
		return nil, err
	}
	user, err := r.Users.GetByID(ctx, entry.UserID)
	if err != nil {
		return nil, err
	}
	st := string(entry.Status)
	return &createReaderPayload{
		Book:   &bookResolver{root: r, book: book},
		User:   &userResolver{root: r, user: user},
		Status: &st,
	}, nil
}

type deleteReaderPayload struct {
	Ok bool
}

func (r *Resolver) DeleteReader(ctx context.Context, args struct{ ID graphql.ID }) (*deleteReaderPayload, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseUintID("id", "Reader", args.ID)
	if err != nil {
		return nil, err
	}
	if err := r.Readers.Delete(ctx, viewer, id); err != nil {
		return nil, err
	}
	return &deleteReaderPayload{Ok: true}, nil
}

type createCommentInput struct {
	Message          string
	Content          graphql.ID
	Parent           *graphql.ID
	ClientMutationId *string
}

type createCommentPayload struct {
	Comment          *commentResolver
	Errors           []*formError
	ClientMutationId *string
}

func (r *Resolver) CreateComment(ctx context.Context, args struct{ Input createCommentInput }) (*createCommentPayload, error) {
	viewer, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	in := args.Input
	out := &createCommentPayload{ClientMutationId: in.ClientMutationId}

	comment, err := r.createComment(ctx, viewer, in)
	if out.Errors, err = formErrors(err); err != nil {
		return nil, err
	}
	if comment != nil {
		out.Comment = &commentResolver{root: r, comment: comment}
	}
	return out, nil
}

func (r *Resolver) createComment(ctx context.Context, viewer uuid.UUID, in createCommentInput) (*models.Comment, error) {
	content, err := parseUintID("content", "Book", in.Content)
	if err != nil {
		return nil, err
	}
	input := service.CreateCommentInput{Message: in.Message, ContentID: content}
	if in.Parent != nil {
		parent, err := parseUintID("parent", "Comment", *in.Parent)
		if err != nil {
			return nil, err
		}
		input.ParentID = &parent
	}
	return r.Comments.Create(ctx, viewer, input)
}
