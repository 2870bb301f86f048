package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"zola/internal/models"
)

// FieldError carries the messages for one input field.
type FieldError struct {
	Field    string
	Messages []string
}

// Errors is a set of per-field failures returned by form-style inputs.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+strings.Join(fe.Messages, "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Extensions mirrors models.AppError so GraphQL clients see the same code.
func (e Errors) Extensions() map[string]interface{} {
	fields := make(map[string]interface{}, len(e))
	for _, fe := range e {
		fields[fe.Field] = fe.Messages
	}
	return map[string]interface{}{"code": models.CodeValidation, "fields": fields}
}

// Add appends a message for field, merging with an existing entry.
func (e *Errors) Add(field, message string) {
	for i := range *e {
		if (*e)[i].Field == field {
			(*e)[i].Messages = append((*e)[i].Messages, message)
			return
		}
	}
	*e = append(*e, FieldError{Field: field, Messages: []string{message}})
}

// Err returns nil when no field failed.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// AsErrors extracts per-field errors from err, also accepting a field-bound AppError.
func AsErrors(err error) (Errors, bool) {
	var fieldErrs Errors
	if errors.As(err, &fieldErrs) {
		return fieldErrs, true
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code == models.CodeValidation && appErr.Field != "" {
		return Errors{{Field: appErr.Field, Messages: []string{appErr.Message}}}, true
	}
	return nil, false
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// report the GraphQL input name rather than the Go field name
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if i := strings.IndexByte(name, ','); i >= 0 {
				name = name[:i]
			}
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
			return models.Genre(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("reader_status", func(fl validator.FieldLevel) bool {
			return models.ReaderStatus(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return models.NewInternalError(err)
	}

	var out Errors
	for _, fe := range validationErrs {
		out.Add(fe.Field(), friendlyMessage(fe))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", e.Param())
	case "min":
		return fmt.Sprintf("Ensure this value has at least %s characters.", e.Param())
	case "url":
		return "Enter a valid URL."
	case "numeric":
		return "Enter a whole number."
	case "genre":
		return "Select a valid choice. That choice is not one of the available choices."
	case "reader_status":
		return "Select a valid choice. Status must be one of wish, read, like."
	default:
		return "This value is invalid."
	}
}
