package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hrapp/hr-auth/models"
)

var (
	// ErrMalformed is returned when a token cannot be parsed or lacks required claims
	ErrMalformed = errors.New("malformed token")

	// ErrBadSignature is returned when the signature does not verify under the current secret
	ErrBadSignature = errors.New("invalid token signature")

	// ErrExpired is returned when the token is past its expiry
	ErrExpired = errors.New("token expired")

	// ErrWrongKind is returned when a valid token is presented for another purpose
	ErrWrongKind = errors.New("unexpected token kind")

	// ErrRevoked is returned by callers that consult a denylist after validation
	ErrRevoked = errors.New("token revoked")

	// ErrMissingSecret is returned when the service is built without a signing secret
	ErrMissingSecret = errors.New("token signing secret is required")
)

const (
	DefaultAccessTTL  = 1 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultResetTTL   = 15 * time.Minute
)

// Config holds configuration for Service
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Result is the trusted content of a validated token
type Result struct {
	ID        string
	Subject   string
	Kind      Kind
	Roles     []models.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service signs and verifies HS256 tokens. It holds no mutable state and is
// safe for concurrent use.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	parser     *jwt.Parser
	validator  *jwt.Validator
}

// NewService creates a new token service
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.ResetTTL == 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	claimOpts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Issuer != "" {
		claimOpts = append(claimOpts, jwt.WithIssuer(cfg.Issuer))
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Service{
		secret:     secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		resetTTL:   cfg.ResetTTL,
		now:        cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		validator: jwt.NewValidator(claimOpts...),
	}, nil
}

// AccessTTL returns the configured access token lifetime
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// ResetTTL returns the configured password reset token lifetime
func (s *Service) ResetTTL() time.Duration { return s.resetTTL }

// IssueAccessToken mints a short-lived token carrying the subject's roles.
// An empty role list is stored as the default role.
func (s *Service) IssueAccessToken(subject string, roles []models.Role) (string, error) {
	if len(roles) == 0 {
		roles = []models.Role{models.DefaultRole}
	}
	return s.issue(subject, KindAccess, models.RoleStrings(roles), s.accessTTL)
}

// IssueRefreshToken mints a refresh token. It carries no roles; they are
// re-resolved from the credential store whenever it is used.
func (s *Service) IssueRefreshToken(subject string) (string, error) {
	return s.issue(subject, KindRefresh, nil, s.refreshTTL)
}

// IssuePasswordResetToken mints a single-purpose reset token.
func (s *Service) IssuePasswordResetToken(subject string) (string, error) {
	return s.issue(subject, KindPasswordReset, nil, s.resetTTL)
}

func (s *Service) issue(subject string, kind Kind, roles []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:  kind,
		Roles: roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Validate verifies a token and checks it was issued for the expected kind.
// Checks run in a fixed order: structure, signature, expiry, kind. The first
// failure is returned wrapped in one of ErrMalformed, ErrBadSignature,
// ErrExpired or ErrWrongKind.
func (s *Service) Validate(tokenString string, expected Kind) (*Result, error) {
	if !expected.valid() {
		return nil, fmt.Errorf("unsupported token kind %q", expected)
	}

	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}
	if err := s.validator.Validate(claims); err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" || !claims.Kind.valid() {
		return nil, fmt.Errorf("%w: missing subject or kind", ErrMalformed)
	}
	if claims.Kind != expected {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, claims.Kind, expected)
	}

	roles, err := parseRoles(claims.Roles)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:      claims.ID,
		Subject: claims.Subject,
		Kind:    claims.Kind,
		Roles:   roles,
	}
	if claims.IssuedAt != nil {
		res.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

// classify maps jwt errors onto our failure set. Signatures are compared with
// hmac.Equal during parsing; time-based claims are only checked afterwards,
// so an expired token with a forged signature reports ErrBadSignature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
