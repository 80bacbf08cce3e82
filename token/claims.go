package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hrapp/hr-auth/models"
)

// Kind is a token's declared purpose.
type Kind string

const (
	KindAccess        Kind = "access"
	KindRefresh       Kind = "refresh"
	KindPasswordReset Kind = "password_reset"
)

func (k Kind) valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindPasswordReset:
		return true
	}
	return false
}

// Claims represents the claims embedded in every token we sign
type Claims struct {
	jwt.RegisteredClaims
	Kind  Kind     `json:"kind"`
	Roles []string `json:"roles,omitempty"`
}

// RolesOf extracts the claimed roles from a token without verifying it.
// Absent roles default to EMPLOYEE. The result is informational only and
// must never be used to authorize a request.
func RolesOf(tokenString string) ([]models.Role, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return parseRoles(claims.Roles)
}

// parseRoles canonicalizes claimed roles, never returning an empty list.
func parseRoles(claimed []string) ([]models.Role, error) {
	if len(claimed) == 0 {
		return []models.Role{models.DefaultRole}, nil
	}
	roles, err := models.ParseRoles(claimed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return roles, nil
}

// Reason returns a short label for a validation failure, suitable for logs
// and metric labels. It never leaves the process.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrWrongKind):
		return "wrong_kind"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}
