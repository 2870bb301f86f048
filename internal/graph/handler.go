package graph

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
	"go.opentelemetry.io/otel/attribute"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/observability"
)

const internalMessage = "Internal server error"

type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Handler serves the schema over HTTP. POST takes a JSON body; GET reads
// query, operationName and variables from the query string and cannot run
// mutations.
type Handler struct {
	schema *graphql.Schema
}

func NewHandler(schema *graphql.Schema) *Handler {
	return &Handler{schema: schema}
}

func (h *Handler) parse(c *fiber.Ctx) (*request, *models.AppError) {
	var req request
	switch c.Method() {
	case fiber.MethodGet:
		req.Query = c.Query("query")
		req.OperationName = c.Query("operationName")
		if raw := c.Query("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				return nil, models.NewValidationError("Variables are invalid JSON.")
			}
		}
		if isMutation(req.Query) {
			return nil, models.NewValidationError("Can only perform a mutation operation from a POST request.")
		}
	default:
		if err := c.BodyParser(&req); err != nil {
			return nil, models.NewValidationError("POST body sent invalid JSON.")
		}
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, models.NewValidationError("Must provide query string.")
	}
	return &req, nil
}

func isMutation(query string) bool {
	return strings.HasPrefix(strings.TrimSpace(query), "mutation")
}

func (h *Handler) Serve(c *fiber.Ctx) error {
	req, perr := h.parse(c)
	if perr != nil {
		return c.Status(fiber.StatusBadRequest).JSON(&graphql.Response{
			Errors: []*gqlerrors.QueryError{{
				Message:    perr.Message,
				Extensions: perr.Extensions(),
			}},
		})
	}

	start := time.Now()
	ctx, span := observability.StartSpan(c.UserContext(), "graphql", "Exec",
		attribute.String("graphql.operation", req.OperationName))
	resp := h.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	sanitize(c, resp.Errors)

	var spanErr error
	if len(resp.Errors) > 0 {
		spanErr = resp.Errors[0]
	}
	observability.EndSpan(span, spanErr)
	observability.ObserveGraphQL(req.OperationName, len(resp.Errors) > 0, start)

	status := fiber.StatusOK
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(resp)
}

// sanitize hides internal failures from clients and gives every error a code.
func sanitize(c *fiber.Ctx, errs []*gqlerrors.QueryError) {
	for _, qe := range errs {
		if qe.ResolverError == nil && !strings.HasPrefix(qe.Message, "panic occurred") {
			if qe.Extensions == nil {
				qe.Extensions = map[string]interface{}{"code": models.CodeValidation}
			}
			continue
		}
		var appErr *models.AppError
		internal := qe.ResolverError == nil ||
			(!errors.As(qe.ResolverError, &appErr) && qe.Extensions == nil)
		if appErr != nil && appErr.Code == models.CodeInternal {
			internal = true
		}
		if !internal {
			if appErr != nil {
				qe.Message = appErr.Message
			}
			continue
		}
		middleware.Logger.ErrorContext(c.UserContext(), "graphql resolver failed",
			slog.Any("path", qe.Path),
			slog.String("error", qe.Error()),
		)
		qe.Message = internalMessage
		qe.Extensions = map[string]interface{}{"code": models.CodeInternal}
	}
}
