package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 3-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 3-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular account: can manage its own profile, nothing else.
	RoleUser Role = "user"

	// RoleAdmin can view and create accounts and read system status.
	RoleAdmin Role = "admin"

	// RoleRoot is the bootstrap superuser: everything admin can do plus
	// deleting accounts and creating admins. Created exactly once during
	// system initialization.
	RoleRoot Role = "root"
)

// AssignableRoles is the set of roles an administrator may assign to new
// accounts. Root is excluded: it exists only via first-run setup.
var AssignableRoles = []Role{RoleUser, RoleAdmin}

// IsAssignableRole returns true if the role may be given to a created account.
func IsAssignableRole(r Role) bool {
	for _, v := range AssignableRoles {
		if r == v {
			return true
		}
	}
	return false
}

// roleRank orders roles by privilege for AtLeast comparisons.
var roleRank = map[Role]int{
	RoleUser:  1,
	RoleAdmin: 2,
	RoleRoot:  3,
}

// AtLeast returns true if r carries at least the privilege of min.
// Unknown roles rank below everything.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// User represents a persisted account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrSelfDeletion       = errors.New("cannot delete own account")
	ErrLastRoot           = errors.New("cannot delete the last root account")
)
