package graph

import (
	"context"

	"github.com/google/uuid"

	"zola/internal/middleware"
	"zola/internal/models"
	"zola/internal/validation"
)

const nonFieldErrors = "__all__"

// formError is one entry of a mutation payload's errors list.
type formError struct {
	Field    string
	Messages []string
}

// formErrors moves field validation failures into the payload. Anything else
// is returned as a GraphQL error.
func formErrors(err error) ([]*formError, error) {
	if err == nil {
		return []*formError{}, nil
	}
	fieldErrs, ok := validation.AsErrors(err)
	if !ok {
		if models.IsCode(err, models.CodeValidation) {
			return []*formError{{Field: nonFieldErrors, Messages: []string{models.AsAppError(err).Message}}}, nil
		}
		return nil, err
	}
	out := make([]*formError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, &formError{Field: fe.Field, Messages: fe.Messages})
	}
	return out, nil
}

// requireViewer returns the authenticated user id or an UNAUTHORIZED error.
// A token that was sent but rejected is reported as such.
func requireViewer(ctx context.Context) (uuid.UUID, error) {
	if id, ok := middleware.ViewerID(ctx); ok {
		return id, nil
	}
	if err := middleware.AuthError(ctx); err != nil {
		if models.IsCode(err, models.CodeUnauthorized) {
			return uuid.Nil, err
		}
		return uuid.Nil, models.NewUnauthorizedError(err.Error())
	}
	return uuid.Nil, models.NewUnauthorizedError("You do not have permission to perform this action")
}
