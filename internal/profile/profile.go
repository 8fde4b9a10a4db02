package profile

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Field length limits, counted in runes.
const (
	MaxDisplayNameLength = 100
	MaxBioLength         = 500
)

// Sentinel errors returned by the repository and validation.
var (
	ErrNotFound    = errors.New("profile not found")
	ErrInvalidData = errors.New("invalid profile data")
)

// Profile is a user's display profile. IsInitialized reports whether the
// user has saved the profile at least once; until then callers see the
// bare username and zero values.
type Profile struct {
	UserID        string    `json:"-"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Bio           string    `json:"bio"`
	Avatar        string    `json:"avatar"`
	IsInitialized bool      `json:"is_initialized"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Update carries the caller-editable profile fields.
type Update struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Avatar      string `json:"avatar"`
}

// Validate checks field lengths against the profile limits.
func (u *Update) Validate() error {
	if utf8.RuneCountInString(u.DisplayName) > MaxDisplayNameLength {
		return fmt.Errorf("%w: display name exceeds %d characters", ErrInvalidData, MaxDisplayNameLength)
	}
	if utf8.RuneCountInString(u.Bio) > MaxBioLength {
		return fmt.Errorf("%w: bio exceeds %d characters", ErrInvalidData, MaxBioLength)
	}
	return nil
}
