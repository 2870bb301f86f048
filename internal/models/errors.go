package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to API clients.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
)

// Domain sentinels. Services wrap these into an AppError before they reach a resolver.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrInvalidCredentials = errors.New("please enter valid credentials")
	ErrImageTooLarge      = errors.New("image file too large")
	ErrInvalidImage       = errors.New("invalid image data")
	ErrDuplicate          = errors.New("record already exists")
	ErrActivationInvalid  = errors.New("this activation key is invalid")
	ErrActivationExpired  = errors.New("this activation key has expired")
	ErrActivationMissing  = errors.New("no activation key was provided")
)

// ErrorResponse is the JSON body of every non-GraphQL error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is an error with a client-facing code and message. Field names
// the offending input for validation errors.
type AppError struct {
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Extensions is read by the GraphQL executor and copied into errors[].extensions.
func (e *AppError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Code}
	if e.Field != "" {
		ext["field"] = e.Field
	}
	return ext
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s with ID %v not found", resource, id)}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// NewFieldError is a validation error bound to one input field.
func NewFieldError(field, message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Field: field}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

func NewRateLimitError() *AppError {
	return &AppError{Code: CodeRateLimited, Message: "Too many attempts, please try again later."}
}

// NewInternalError hides err from clients. The cause stays available to logs via Unwrap.
func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// AsAppError unwraps err into an AppError, mapping anything unknown to INTERNAL_ERROR.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}

// IsCode reports whether err carries the given AppError code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// RespondWithError writes err as an ErrorResponse with status. Causes of
// internal errors are never echoed.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
	}

	body := ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	if appErr.Err != nil && appErr.Code != CodeInternal {
		body.Details = appErr.Err.Error()
	}
	return c.Status(status).JSON(body)
}
