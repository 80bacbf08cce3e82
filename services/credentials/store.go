package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/repositories"
	"github.com/hrapp/hr-auth/services"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes
	MaxPasswordBytes = 72
)

// Store is the credential store backed by the user repository. It never
// caches principals; every call reads current state.
type Store struct {
	users  repositories.UserRepository
	cost   int
	logger *zap.Logger

	// dummyHash is compared against when the subject does not exist so
	// unknown and known accounts take similar time to reject.
	dummyHash []byte
}

// NewStore creates a new credential store
func NewStore(users repositories.UserRepository, cost int, logger *zap.Logger) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &Store{
		users:     users,
		cost:      cost,
		logger:    logger,
		dummyHash: dummy,
	}
}

// WithTx returns a store whose repository calls run inside tx
func (s *Store) WithTx(tx repositories.Transaction) *Store {
	clone := *s
	clone.users = s.users.WithTx(tx)
	return &clone
}

// NormalizeSubject lower-cases and trims an email used as a subject
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// Lookup returns the current principal state for a subject
func (s *Store) Lookup(ctx context.Context, subject string) (*models.Principal, error) {
	user, err := s.load(ctx, subject)
	if err != nil {
		return nil, err
	}
	return user.Principal(), nil
}

// LookupUser returns the full user record for a subject
func (s *Store) LookupUser(ctx context.Context, subject string) (*models.User, error) {
	return s.load(ctx, subject)
}

func (s *Store) load(ctx context.Context, subject string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeSubject(subject))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	return user, nil
}

// Authenticate verifies a raw password and returns the principal. Unknown
// subject, wrong password and disabled account all yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, subject, raw string) (*models.Principal, error) {
	user, err := s.load(ctx, subject)
	if err != nil {
		if services.IsNotFoundError(err) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(raw))
			s.logger.Debug("authentication failed", zap.String("reason", "unknown_subject"))
			return nil, services.NewDomainError(services.ErrorTypeUnauthenticated, services.ErrInvalidCredentials.Message, err)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(raw)); err != nil {
		s.logger.Debug("authentication failed", zap.String("reason", "bad_password"))
		return nil, services.NewDomainError(services.ErrorTypeUnauthenticated, services.ErrInvalidCredentials.Message, err)
	}

	if !user.IsActive() {
		s.logger.Debug("authentication failed", zap.String("reason", "disabled"))
		return nil, services.NewDomainError(services.ErrorTypeUnauthenticated, services.ErrInvalidCredentials.Message, services.ErrAccountDisabled)
	}

	return user.Principal(), nil
}

// SetPassword hashes and stores a new password for the subject
func (s *Store) SetPassword(ctx context.Context, subject, raw string) error {
	hash, err := s.HashPassword(raw)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, NormalizeSubject(subject), hash); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapInternal("failed to update password", err)
	}
	return nil
}

// Create registers a new active account
func (s *Store) Create(ctx context.Context, name, email, raw string, role models.Role) (*models.User, error) {
	hash, err := s.HashPassword(raw)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(name, email, hash, role)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.ErrDuplicateEmail
		}
		return nil, services.WrapInternal("failed to create user", err)
	}
	return user, nil
}

// HashPassword validates and bcrypt-hashes a raw password
func (s *Store) HashPassword(raw string) (string, error) {
	return HashPassword(raw, s.cost)
}

// HashPassword validates and bcrypt-hashes a raw password at the given cost
func HashPassword(raw string, cost int) (string, error) {
	if err := ValidatePassword(raw); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ValidatePassword enforces length bounds
func ValidatePassword(raw string) error {
	if utf8.RuneCountInString(raw) < MinPasswordLength {
		return services.NewDomainError(services.ErrorTypeValidation, services.ErrWeakPassword.Message, nil).
			WithDetail("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if len(raw) > MaxPasswordBytes {
		return services.NewDomainError(services.ErrorTypeValidation, services.ErrWeakPassword.Message, nil).
			WithDetail("password", fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}
