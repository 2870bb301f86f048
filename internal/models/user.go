// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Column limits shared by the model tags and input validation.
const (
	UsernameMaxLength         = 20
	UsernameMinLength         = 3
	NameMaxLength             = 50
	ShortDescriptionMaxLength = 300
	LocationMaxLength         = 300
	LocationIDMaxLength       = 100
	EmailMaxLength            = 254
)

// User represents an account. Email is the login identifier.
type User struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email            string     `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Username         string     `gorm:"size:20;uniqueIndex;not null" json:"username"`
	Password         string     `gorm:"not null;default:''" json:"-"`
	FirstName        string     `gorm:"size:50;not null;default:''" json:"first_name"`
	LastName         string     `gorm:"size:50;not null;default:''" json:"last_name"`
	ShortDescription string     `gorm:"size:300;not null;default:''" json:"short_description"`
	Location         string     `gorm:"size:300;not null;default:''" json:"location"`
	LocationID       string     `gorm:"size:100;not null;default:''" json:"location_id"`
	Avatar           string     `json:"avatar"`
	Tags             []Tag      `gorm:"many2many:user_tags;" json:"tags,omitempty"`
	IsStaff          bool       `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser      bool       `gorm:"not null;default:false" json:"is_superuser"`
	IsActive         bool       `gorm:"not null;default:true" json:"is_active"`
	ConfirmedEmail   bool       `gorm:"not null;default:false" json:"confirmed_email"`
	ActivationKey    uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"-"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	DateJoined       time.Time  `gorm:"autoCreateTime" json:"date_joined"`
	DateUpdated      time.Time  `gorm:"autoUpdateTime" json:"date_updated"`
}

// HasUsablePassword is false for accounts created without a password.
func (u *User) HasUsablePassword() bool {
	return u != nil && u.Password != ""
}

// FullName joins first and last name with a single space.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ActivationExpired reports whether the activation window opened at DateJoined has closed.
func (u *User) ActivationExpired(now time.Time, window time.Duration) bool {
	return u.DateJoined.Add(window).Before(now)
}

// CanConfirmEmail is true while the key is fresh and the email is still unconfirmed.
func (u *User) CanConfirmEmail(now time.Time, window time.Duration) bool {
	return !u.ActivationExpired(now, window) && !u.ConfirmedEmail
}

// AvatarPath is the storage key every avatar of this user is written to.
func (u *User) AvatarPath() string {
	return "avatar/" + u.ID.String() + ".jpg"
}

// TagNames flattens the loaded tag association.
func (u *User) TagNames() []string {
	return tagNames(u.Tags)
}

// UserOrderColumns maps the UserOrderBy enum fields onto columns.
var UserOrderColumns = map[string]string{
	"firstName":  "first_name",
	"lastName":   "last_name",
	"email":      "email",
	"username":   "username",
	"dateJoined": "date_joined",
}
