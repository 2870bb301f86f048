package graph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"zola/internal/cache"
	"zola/internal/config"
	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/repository"
	"zola/internal/service"
	"zola/internal/testutil"
)

const testPassword = "correct-horse-42"

type testEnv struct {
	db       *gorm.DB
	resolver *Resolver
	schema   *graphql.Schema
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	cfg := &config.Config{
		JWTSecret:             "test-secret-key-with-enough-length!!",
		JWTIssuer:             "zola-api",
		JWTAudience:           "zola-client",
		JWTAccessTTLMinutes:   5,
		JWTRefreshTTLDays:     7,
		AccountActivationDays: 7,
	}

	userRepo := repository.NewUserRepository(db)
	bookRepo := repository.NewBookRepository(db)
	writerRepo := repository.NewWriterRepository(db)

	images := service.NewImageService(service.NewLocalMediaStore(t.TempDir(), "/medias/"), cfg)
	tags := service.NewTagService(repository.NewTagRepository(db))
	r := &Resolver{
		Users:    service.NewUserService(userRepo, tags, images, cfg.ActivationWindow()),
		Books:    service.NewBookService(bookRepo, writerRepo, tags, images),
		Writers:  service.NewWriterService(writerRepo),
		Readers:  service.NewReaderService(repository.NewReaderRepository(db), bookRepo),
		Comments: service.NewCommentService(repository.NewCommentRepository(db), bookRepo, nil),
		Tags:     tags,
		Tokens:   service.NewTokenService(cfg, cache.NewMemoryTokenStore(), userRepo),
		Images:   images,
	}
	return &testEnv{
		db:       db,
		resolver: r,
		schema:   NewSchema(r, SchemaOptions{MaxDepth: 12, Introspection: true}),
	}
}

func (e *testEnv) exec(t *testing.T, ctx context.Context, query string, vars map[string]interface{}) (map[string]interface{}, []*gqlerrors.QueryError) {
	t.Helper()
	resp := e.schema.Exec(ctx, query, "", vars)
	var data map[string]interface{}
	if len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, &data))
	}
	return data, resp.Errors
}

func (e *testEnv) mustExec(t *testing.T, ctx context.Context, query string, vars map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, errs := e.exec(t, ctx, query, vars)
	require.Empty(t, errs)
	return data
}

func as(id uuid.UUID) context.Context {
	return middleware.WithViewer(context.Background(), id)
}

func errorCode(t *testing.T, errs []*gqlerrors.QueryError) string {
	t.Helper()
	require.NotEmpty(t, errs)
	code, _ := errs[0].Extensions["code"].(string)
	return code
}

// dig walks nested maps by key.
func dig(v interface{}, keys ...string) interface{} {
	for _, k := range keys {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v = m[k]
	}
	return v
}

func TestViewer_Anonymous(t *testing.T) {
	env := newTestEnv(t)
	data := env.mustExec(t, context.Background(), `{ viewer { id isLoggedIn currentUser { id } } }`, nil)

	assert.Equal(t, false, dig(data, "viewer", "isLoggedIn"))
	assert.Nil(t, dig(data, "viewer", "currentUser"))
	assert.Equal(t, models.GlobalID("Viewer", "anonymous"), dig(data, "viewer", "id"))
}

func TestViewer_CurrentUser(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "ana@example.com")

	data := env.mustExec(t, as(user.ID), `{ viewer { isLoggedIn currentUser { pk email username hasPassword } } }`, nil)
	assert.Equal(t, true, dig(data, "viewer", "isLoggedIn"))
	assert.Equal(t, user.ID.String(), dig(data, "viewer", "currentUser", "pk"))
	assert.Equal(t, "ana@example.com", dig(data, "viewer", "currentUser", "email"))
	assert.Equal(t, false, dig(data, "viewer", "currentUser", "hasPassword"))
}

const createUserMutation = `mutation($email: String!, $password: String!) {
  createUser(input: {email: $email, password: $password, clientMutationId: "m1"}) {
    user { email username }
    errors { field messages }
    clientMutationId
  }
}`

func TestCreateUser_FormErrors(t *testing.T) {
	env := newTestEnv(t)
	data := env.mustExec(t, context.Background(), createUserMutation, map[string]interface{}{
		"email": "not-an-email", "password": "short",
	})

	payload := dig(data, "createUser").(map[string]interface{})
	assert.Nil(t, payload["user"])
	assert.Equal(t, "m1", payload["clientMutationId"])

	fields := map[string]bool{}
	for _, e := range payload["errors"].([]interface{}) {
		fields[dig(e, "field").(string)] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["password"])
}

func TestAuthFlow_RefreshTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := env.mustExec(t, ctx, createUserMutation, map[string]interface{}{
		"email": "Reader@Example.com", "password": testPassword,
	})
	assert.Equal(t, "reader@example.com", dig(data, "createUser", "user", "email"))
	assert.Empty(t, dig(data, "createUser", "errors"))

	data = env.mustExec(t, ctx, `mutation($email: String!, $password: String!) {
	  tokenAuth(input: {email: $email, password: $password}) {
	    token refreshToken refreshExpiresIn payload { email exp origIat } user { email }
	  }
	}`, map[string]interface{}{"email": "reader@example.com", "password": testPassword})

	token := dig(data, "tokenAuth", "token").(string)
	refresh := dig(data, "tokenAuth", "refreshToken").(string)
	assert.NotEmpty(t, token)
	assert.Equal(t, "reader@example.com", dig(data, "tokenAuth", "payload", "email"))
	assert.Positive(t, dig(data, "tokenAuth", "refreshExpiresIn").(float64))
	exp := dig(data, "tokenAuth", "payload", "exp").(float64)
	assert.InDelta(t, float64(time.Now().Add(5*time.Minute).Unix()), exp, 30)
	assert.Greater(t, exp, dig(data, "tokenAuth", "payload", "origIat").(float64))

	data = env.mustExec(t, ctx, `mutation($token: String!) {
	  verifyToken(input: {token: $token}) { payload { email } user { email } }
	}`, map[string]interface{}{"token": token})
	assert.Equal(t, "reader@example.com", dig(data, "verifyToken", "user", "email"))

	const refreshMutation = `mutation($rt: String!) {
	  refreshToken(input: {refreshToken: $rt}) { token refreshToken }
	}`
	data = env.mustExec(t, ctx, refreshMutation, map[string]interface{}{"rt": refresh})
	assert.NotEqual(t, refresh, dig(data, "refreshToken", "refreshToken"))

	_, errs := env.exec(t, ctx, refreshMutation, map[string]interface{}{"rt": refresh})
	assert.Equal(t, models.CodeUnauthorized, errorCode(t, errs))
}

func TestTokenAuth_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	_, errs := env.exec(t, context.Background(), `mutation {
	  tokenAuth(input: {email: "ghost@example.com", password: "whatever-1"}) { token }
	}`, nil)
	assert.Equal(t, models.CodeUnauthorized, errorCode(t, errs))
}

func TestBooks_TagsAndTitleRejected(t *testing.T) {
	env := newTestEnv(t)
	_, errs := env.exec(t, context.Background(), `{ viewer { books(title: "Dune", tags: ["sf"]) { totalCount } } }`, nil)
	assert.Equal(t, models.CodeValidation, errorCode(t, errs))
}

func TestBooks_Pagination(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")
	writer := testutil.CreateWriter(t, env.db, "Ursula K. Le Guin")
	for _, title := range []string{"A", "B", "C"} {
		testutil.CreateBook(t, env.db, owner, title, writer)
	}

	data := env.mustExec(t, context.Background(), `{ viewer { books(first: 2, orderBy: title_ASC) {
	  totalCount
	  pageInfo { hasNextPage hasPreviousPage endCursor }
	  edges { cursor node { title writer { name } } }
	} } }`, nil)

	conn := dig(data, "viewer", "books")
	assert.Equal(t, float64(3), dig(conn, "totalCount"))
	assert.Equal(t, true, dig(conn, "pageInfo", "hasNextPage"))
	edges := dig(conn, "edges").([]interface{})
	require.Len(t, edges, 2)
	assert.Equal(t, "A", dig(edges[0], "node", "title"))
	assert.Equal(t, "Ursula K. Le Guin", dig(edges[0].(map[string]interface{})["node"].(map[string]interface{})["writer"].([]interface{})[0], "name"))

	data = env.mustExec(t, context.Background(), `query($after: String) { viewer { books(first: 2, after: $after, orderBy: title_ASC) {
	  pageInfo { hasNextPage }
	  edges { node { title } }
	} } }`, map[string]interface{}{"after": dig(conn, "pageInfo", "endCursor")})
	edges = dig(data, "viewer", "books", "edges").([]interface{})
	require.Len(t, edges, 1)
	assert.Equal(t, "C", dig(edges[0], "node", "title"))
	assert.Equal(t, false, dig(data, "viewer", "books", "pageInfo", "hasNextPage"))
}

const createBookMutation = `mutation($writer: [ID!]!) {
  createBook(input: {title: "The Dispossessed", writer: $writer, genre: "sf", tags: "['utopia', 'physics']"}) {
    book { id pk title genre tags owner { username } }
    errors { field messages }
  }
}`

func TestCreateBook_RequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	_, errs := env.exec(t, context.Background(), createBookMutation, map[string]interface{}{"writer": []interface{}{"1"}})
	assert.Equal(t, models.CodeUnauthorized, errorCode(t, errs))
}

func TestCreateBook_AndNodeLookup(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")
	writer := testutil.CreateWriter(t, env.db, "Ursula K. Le Guin")
	writerID := models.GlobalID("Writer", uintPK(writer.ID))

	data := env.mustExec(t, as(owner.ID), createBookMutation, map[string]interface{}{"writer": []interface{}{writerID}})
	book := dig(data, "createBook", "book")
	require.NotNil(t, book)
	assert.Empty(t, dig(data, "createBook", "errors"))
	assert.Equal(t, "sf", dig(book, "genre"))
	assert.ElementsMatch(t, []interface{}{"utopia", "physics"}, dig(book, "tags"))
	assert.Equal(t, "owner", dig(book, "owner", "username"))

	data = env.mustExec(t, context.Background(), `query($id: ID!) { node(id: $id) { id ... on Book { title } } }`,
		map[string]interface{}{"id": dig(book, "id")})
	assert.Equal(t, "The Dispossessed", dig(data, "node", "title"))

	data = env.mustExec(t, context.Background(), `{ node(id: "Qm9vazo5OTk5") { id } }`, nil)
	assert.Nil(t, data["node"])
}

func TestCreateBook_UnknownWriterIsFormError(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")

	data := env.mustExec(t, as(owner.ID), createBookMutation, map[string]interface{}{"writer": []interface{}{"not-an-id"}})
	assert.Nil(t, dig(data, "createBook", "book"))
	errs := dig(data, "createBook", "errors").([]interface{})
	require.NotEmpty(t, errs)
	assert.Equal(t, "writer", dig(errs[0], "field"))
}

func TestPrivateUserNode_OnlyForOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")
	other := testutil.CreateUser(t, env.db, "other@example.com")
	id := models.GlobalID("PrivateUser", owner.ID.String())
	const q = `query($id: ID!) { node(id: $id) { ... on PrivateUser { email } } }`

	data := env.mustExec(t, as(owner.ID), q, map[string]interface{}{"id": id})
	assert.Equal(t, "owner@example.com", dig(data, "node", "email"))

	data = env.mustExec(t, as(other.ID), q, map[string]interface{}{"id": id})
	assert.Nil(t, data["node"])
}

func TestReaders_CreateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")
	other := testutil.CreateUser(t, env.db, "other@example.com")
	book := testutil.CreateBook(t, env.db, owner, "Solaris", testutil.CreateWriter(t, env.db, "Stanisław Lem"))

	data := env.mustExec(t, as(owner.ID), `mutation($book: Int!) {
	  createReader(bookId: $book, status: like) { status book { title } user { username } }
	}`, map[string]interface{}{"book": int(book.ID)})
	assert.Equal(t, "like", dig(data, "createReader", "status"))
	assert.Equal(t, "Solaris", dig(data, "createReader", "book", "title"))

	data = env.mustExec(t, context.Background(), `{ viewer { readers(status: like) { totalCount edges { node { id status user { username } } } } } }`, nil)
	assert.Equal(t, float64(1), dig(data, "viewer", "readers", "totalCount"))
	readerID := dig(data, "viewer", "readers", "edges").([]interface{})[0].(map[string]interface{})["node"].(map[string]interface{})["id"]

	const del = `mutation($id: ID!) { deleteReader(id: $id) { ok } }`
	_, errs := env.exec(t, as(other.ID), del, map[string]interface{}{"id": readerID})
	assert.Equal(t, models.CodeUnauthorized, errorCode(t, errs))

	data = env.mustExec(t, as(owner.ID), del, map[string]interface{}{"id": readerID})
	assert.Equal(t, true, dig(data, "deleteReader", "ok"))
}

func TestComments_Thread(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")
	book := testutil.CreateBook(t, env.db, owner, "Solaris", testutil.CreateWriter(t, env.db, "Stanisław Lem"))
	bookID := models.GlobalID("Book", uintPK(book.ID))

	const create = `mutation($message: String!, $content: ID!, $parent: ID) {
	  createComment(input: {message: $message, content: $content, parent: $parent}) {
	    comment { id pk message owner { username } }
	    errors { field messages }
	  }
	}`
	post := func(message string, parent interface{}) string {
		data := env.mustExec(t, as(owner.ID), create, map[string]interface{}{
			"message": message, "content": bookID, "parent": parent,
		})
		id, ok := dig(data, "createComment", "comment", "id").(string)
		require.True(t, ok, "comment not created: %v", data)
		return id
	}

	root := post("root", nil)
	child := post("child", root)
	post("grandchild", child)
	post("second root", nil)

	data := env.mustExec(t, context.Background(), `query($id: ID!) {
	  node(id: $id) { ... on Comment { message parent { id } children(includeSelf: true) { message } } }
	}`, map[string]interface{}{"id": root})

	var messages []string
	for _, c := range dig(data, "node", "children").([]interface{}) {
		messages = append(messages, dig(c, "message").(string))
	}
	assert.Equal(t, []string{"root", "child", "grandchild"}, messages)
	assert.Nil(t, dig(data, "node", "parent"))

	data = env.mustExec(t, context.Background(), `query($id: ID!) { node(id: $id) { ... on Book { comments { message } } } }`,
		map[string]interface{}{"id": bookID})
	assert.Len(t, dig(data, "node", "comments"), 2)
}

func TestCreateComment_ParentOnOtherBook(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")
	writer := testutil.CreateWriter(t, env.db, "Stanisław Lem")
	first := testutil.CreateBook(t, env.db, owner, "Solaris", writer)
	second := testutil.CreateBook(t, env.db, owner, "Fiasco", writer)

	parent, err := env.resolver.Comments.Create(context.Background(), owner.ID, service.CreateCommentInput{Message: "hi", ContentID: first.ID})
	require.NoError(t, err)

	data := env.mustExec(t, as(owner.ID), `mutation($content: ID!, $parent: ID) {
	  createComment(input: {message: "reply", content: $content, parent: $parent}) { comment { id } errors { field } }
	}`, map[string]interface{}{
		"content": models.GlobalID("Book", uintPK(second.ID)),
		"parent":  models.GlobalID("Comment", uintPK(parent.ID)),
	})
	assert.Nil(t, dig(data, "createComment", "comment"))
	assert.Equal(t, "parent", dig(dig(data, "createComment", "errors").([]interface{})[0], "field"))
}

func TestWriters_FilterAndCreate(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "ana@example.com")
	testutil.CreateWriter(t, env.db, "Octavia Butler")

	data := env.mustExec(t, as(user.ID), `mutation { createWriter(name: "Ted Chiang", link: "https://example.com/chiang") { writer { name link } } }`, nil)
	assert.Equal(t, "Ted Chiang", dig(data, "createWriter", "writer", "name"))

	data = env.mustExec(t, context.Background(), `{ viewer { writers(name_Icontains: "chi") { totalCount edges { node { name } } } } }`, nil)
	assert.Equal(t, float64(1), dig(data, "viewer", "writers", "totalCount"))
}

func TestTags_MostCommon(t *testing.T) {
	env := newTestEnv(t)
	owner := testutil.CreateUser(t, env.db, "owner@example.com")
	writer := testutil.CreateWriter(t, env.db, "Stanisław Lem")
	writerID := models.GlobalID("Writer", uintPK(writer.ID))
	env.mustExec(t, as(owner.ID), createBookMutation, map[string]interface{}{"writer": []interface{}{writerID}})

	data := env.mustExec(t, context.Background(), `{ viewer { tags(first: 1) { totalCount pageInfo { hasNextPage } edges { node { name taggedBooks } } } } }`, nil)
	assert.Equal(t, float64(2), dig(data, "viewer", "tags", "totalCount"))
	assert.Equal(t, true, dig(data, "viewer", "tags", "pageInfo", "hasNextPage"))
	edges := dig(data, "viewer", "tags", "edges").([]interface{})
	require.Len(t, edges, 1)
	assert.Equal(t, float64(1), dig(edges[0], "node", "taggedBooks"))
}

func TestNewTokenPayload_After2038(t *testing.T) {
	// 2100-01-01T00:00:00Z does not fit in an int32.
	p := newTokenPayload(service.Payload{Email: "late@example.com", Exp: 4102444800, OrigIat: 4102444500})
	assert.Equal(t, 4102444800.0, p.Exp)
	assert.Equal(t, 4102444500.0, p.OrigIat)
}
