// Package bootstrap creates the first administrator account on startup.
package bootstrap

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/config"
	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/services/audit"
	"github.com/hrapp/hr-auth/services/credentials"
	"github.com/hrapp/hr-auth/services/notify"
)

const (
	passwordAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789@$%&!"
	generatedPasswordLength = 16
)

// AdminBootstrapper ensures an administrator exists
type AdminBootstrapper struct {
	store    *credentials.Store
	notifier notify.Notifier
	recorder audit.Recorder
	admin    config.AdminConfig
	// revealPassword logs a generated password; never enabled in production
	revealPassword bool
	logger         *zap.Logger
}

// NewAdminBootstrapper creates a bootstrapper for the configured admin
func NewAdminBootstrapper(
	store *credentials.Store,
	notifier notify.Notifier,
	recorder audit.Recorder,
	admin config.AdminConfig,
	revealPassword bool,
	logger *zap.Logger,
) *AdminBootstrapper {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &AdminBootstrapper{
		store:          store,
		notifier:       notifier,
		recorder:       recorder,
		admin:          admin,
		revealPassword: revealPassword,
		logger:         logger,
	}
}

// EnsureAdmin creates the admin account when it does not exist yet and
// reports whether it did. A missing admin email is a configuration error.
func (b *AdminBootstrapper) EnsureAdmin(ctx context.Context) (bool, error) {
	email := credentials.NormalizeSubject(b.admin.Email)
	if email == "" {
		return false, services.WrapConfiguration("admin email is not configured", services.ErrMissingConfiguration)
	}

	_, err := b.store.LookupUser(ctx, email)
	if err == nil {
		b.logger.Info("admin account already exists", zap.String("email", email))
		return false, nil
	}
	if !services.IsNotFoundError(err) {
		return false, err
	}

	password := b.admin.Password
	generated := strings.TrimSpace(password) == ""
	if generated {
		password, err = GeneratePassword(generatedPasswordLength)
		if err != nil {
			return false, services.WrapInternal("failed to generate admin password", err)
		}
	}

	name := b.admin.Name
	if name == "" {
		name = "Admin"
	}

	user, err := b.store.Create(ctx, name, email, password, models.RoleAdmin)
	if err != nil {
		if services.IsConflictError(err) {
			// Another instance won the race.
			b.logger.Info("admin account created concurrently", zap.String("email", email))
			return false, nil
		}
		return false, err
	}

	fields := []zap.Field{zap.String("email", user.Email), zap.Bool("generated_password", generated)}
	if generated && b.revealPassword {
		fields = append(fields, zap.String("temporary_password", password))
	}
	b.logger.Info("admin account created, reset the password after first login", fields...)

	if err := b.notifier.SendWelcome(ctx, user.Email, user.Name, user.Role.String(), password); err != nil {
		b.logger.Warn("failed to send admin welcome email", zap.String("email", user.Email), zap.Error(err))
	}

	_ = b.recorder.Record(audit.AdminBootstrapped(user.Email, generated))
	return true, nil
}

// GeneratePassword returns a random password drawn from a mixed alphabet
func GeneratePassword(length int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(passwordAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
