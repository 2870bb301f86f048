// Package validation provides input validation utilities
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 128
)

var (
	ErrPasswordTooShort = errors.New("the password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("the password must not exceed 128 characters")
	ErrPasswordMix      = errors.New("the password must contain at least one letter and at least one digit or punctuation character")
)

// ValidatePassword enforces the account password policy: at least eight
// characters mixing letters with at least one non-letter.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < PasswordMinLength {
		return ErrPasswordTooShort
	}
	if n > PasswordMaxLength {
		return ErrPasswordTooLong
	}

	first, _ := utf8.DecodeRuneInString(password)
	firstIsLetter := unicode.IsLetter(first)
	for _, r := range password {
		if unicode.IsLetter(r) != firstIsLetter {
			return nil
		}
	}
	return ErrPasswordMix
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lowercases an address before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return errors.New("enter a valid email address")
	}
	if len(email) > 254 {
		return errors.New("email must not exceed 254 characters")
	}
	return nil
}
