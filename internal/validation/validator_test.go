package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zola/internal/models"
)

type sampleInput struct {
	Title  string  `json:"title" validate:"required,max=5"`
	Genre  *string `json:"genre" validate:"omitempty,genre"`
	Link   *string `json:"link" validate:"omitempty,url"`
	Status string  `json:"status" validate:"reader_status"`
}

func TestStruct_Valid(t *testing.T) {
	genre := "manga"
	link := "https://example.com/writer"
	err := Struct(sampleInput{Title: "Dune", Genre: &genre, Link: &link, Status: "read"})
	assert.NoError(t, err)
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	genre := "western"
	link := "not a url"
	err := Struct(sampleInput{Title: "", Genre: &genre, Link: &link, Status: "maybe"})
	require.Error(t, err)

	fieldErrs, ok := AsErrors(err)
	require.True(t, ok)

	fields := map[string][]string{}
	for _, fe := range fieldErrs {
		fields[fe.Field] = fe.Messages
	}
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "genre")
	assert.Contains(t, fields, "link")
	assert.Contains(t, fields, "status")
	assert.Equal(t, []string{"This field is required."}, fields["title"])

	ext := fieldErrs.Extensions()
	assert.Equal(t, models.CodeValidation, ext["code"])
}

func TestStruct_MaxLength(t *testing.T) {
	err := Struct(sampleInput{Title: "too long title", Status: "wish"})
	fieldErrs, ok := AsErrors(err)
	require.True(t, ok)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "title", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Messages[0], "at most 5")
}

func TestAsErrors_FieldBoundAppError(t *testing.T) {
	fieldErrs, ok := AsErrors(models.NewFieldError("avatar", "Image file too large"))
	require.True(t, ok)
	assert.Equal(t, Errors{{Field: "avatar", Messages: []string{"Image file too large"}}}, fieldErrs)

	_, ok = AsErrors(models.NewUnauthorizedError("nope"))
	assert.False(t, ok)

	_, ok = AsErrors(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrors_Add(t *testing.T) {
	var errs Errors
	assert.NoError(t, errs.Err())
	errs.Add("email", "taken")
	errs.Add("email", "invalid")
	errs.Add("password", "short")
	require.Len(t, errs, 2)
	assert.Equal(t, []string{"taken", "invalid"}, errs[0].Messages)
	assert.Error(t, errs.Err())
}
