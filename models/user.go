package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the single authorization tag carried by a user.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleHR       Role = "HR"
	RoleEmployee Role = "EMPLOYEE"
)

// DefaultRole applies when a token carries no role claim.
const DefaultRole = RoleEmployee

// AuthorityPrefix is prepended to a role to form an authority.
const AuthorityPrefix = "ROLE_"

// ErrUnknownRole is returned when a role string does not name a known role.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole canonicalizes a role string. Input is case-insensitive and may
// carry the ROLE_ authority prefix.
func ParseRole(s string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, AuthorityPrefix)
	switch Role(v) {
	case RoleAdmin, RoleHR, RoleEmployee:
		return Role(v), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// ParseRoles parses every entry, failing on the first unknown one.
func ParseRoles(in []string) ([]Role, error) {
	out := make([]Role, 0, len(in))
	for _, s := range in {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Authority returns the prefixed form, e.g. ROLE_ADMIN.
func (r Role) Authority() string {
	return AuthorityPrefix + string(r)
}

func (r Role) String() string {
	return string(r)
}

// Authorities maps roles to their authority strings, preserving order.
func Authorities(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Authority()
	}
	return out
}

// RoleStrings converts roles to plain strings for token claims.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// UserStatus represents whether an account may authenticate
type UserStatus string

const (
	StatusActive      UserStatus = "ACTIVE"
	StatusDeactivated UserStatus = "DEACTIVATED"
)

// User represents an HR account
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         Role       `json:"role" db:"role"`
	Status       UserStatus `json:"status" db:"status"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new active User instance
func NewUser(name, email, passwordHash string, role Role) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Role:         role,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsActive returns true if the user may authenticate
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Principal projects the authorization-relevant view of the user.
func (u *User) Principal() *Principal {
	return &Principal{
		Subject: u.Email,
		Name:    u.Name,
		Role:    u.Role,
		Active:  u.IsActive(),
	}
}

// Principal is the authenticated identity seen by the auth layer.
type Principal struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	Active  bool   `json:"active"`
}
