// Package passwordreset implements the forgot-password exchange: a short-lived
// PasswordReset token is emailed as a link and later traded, once, for a new
// password.
package passwordreset

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/repositories"
	"github.com/hrapp/hr-auth/services"
	"github.com/hrapp/hr-auth/services/credentials"
	"github.com/hrapp/hr-auth/services/notify"
	"github.com/hrapp/hr-auth/services/revocation"
	"github.com/hrapp/hr-auth/token"
)

const (
	// RequestedMessage is returned for every forgot-password request,
	// whether or not the address belongs to an account.
	RequestedMessage = "If the email exists, a reset link has been sent."
	// CompletedMessage is returned after a successful reset
	CompletedMessage = "Password updated successfully!"
)

// Outcome describes what a Request did, for audit and metrics only.
// It must never change the response sent to the client.
type Outcome struct {
	Subject   string
	KnownUser bool
	Sent      bool
}

// Flow runs the password reset exchange
type Flow struct {
	tokens   *token.Service
	store    *credentials.Store
	txMgr    repositories.TransactionManager
	notifier notify.Notifier
	denylist revocation.Denylist
	linkBase string
	logger   *zap.Logger
}

// NewFlow creates a reset flow. linkBase is the frontend page that accepts
// the token, e.g. http://localhost:4200/reset-password. txMgr may be nil.
func NewFlow(
	tokens *token.Service,
	store *credentials.Store,
	txMgr repositories.TransactionManager,
	notifier notify.Notifier,
	denylist revocation.Denylist,
	linkBase string,
	logger *zap.Logger,
) *Flow {
	return &Flow{
		tokens:   tokens,
		store:    store,
		txMgr:    txMgr,
		notifier: notifier,
		denylist: denylist,
		linkBase: linkBase,
		logger:   logger,
	}
}

// Link builds the reset link carried in the email
func (f *Flow) Link(resetToken string) string {
	return f.linkBase + "?token=" + url.QueryEscape(resetToken)
}

// Request issues a reset token for email and hands it to the notifier.
// Unknown addresses succeed silently. A notifier failure is returned as a
// delivery error; callers decide whether to mask it.
func (f *Flow) Request(ctx context.Context, email string) (Outcome, error) {
	subject := credentials.NormalizeSubject(email)
	outcome := Outcome{Subject: subject}

	user, err := f.store.LookupUser(ctx, subject)
	if err != nil {
		if services.IsNotFoundError(err) {
			f.logger.Debug("password reset requested for unknown subject")
			return outcome, nil
		}
		return outcome, err
	}
	outcome.KnownUser = true

	if !user.IsActive() {
		f.logger.Info("password reset requested for deactivated account", zap.String("subject", subject))
		return outcome, nil
	}

	resetToken, err := f.tokens.IssuePasswordResetToken(user.Email)
	if err != nil {
		return outcome, services.WrapInternal("failed to issue reset token", err)
	}

	if err := f.notifier.SendPasswordReset(ctx, user.Email, user.Name, f.Link(resetToken)); err != nil {
		f.logger.Error("failed to send password reset email", zap.String("subject", subject), zap.Error(err))
		return outcome, services.WrapDelivery("failed to send password reset email", err)
	}

	outcome.Sent = true
	f.logger.Info("password reset email sent", zap.String("subject", subject))
	return outcome, nil
}

// Consume validates a reset token and sets the new password. Each token
// works once. Every token problem maps to ErrInvalidResetToken.
func (f *Flow) Consume(ctx context.Context, resetToken, newPassword string) (string, error) {
	result, err := f.tokens.Validate(resetToken, token.KindPasswordReset)
	if err != nil {
		f.logger.Warn("invalid password reset token", zap.String("reason", token.Reason(err)))
		return "", invalidToken(err)
	}

	if err := credentials.ValidatePassword(newPassword); err != nil {
		return "", err
	}

	if f.denylist != nil {
		claimed, err := f.denylist.MarkSpent(ctx, result.ID, result.ExpiresAt)
		if err != nil {
			return "", services.WrapInternal("failed to claim reset token", err)
		}
		if !claimed {
			f.logger.Warn("password reset token reused", zap.String("subject", result.Subject))
			return "", invalidToken(token.ErrRevoked)
		}
	}

	if err := f.updatePassword(ctx, result.Subject, newPassword); err != nil {
		if f.denylist != nil {
			if relErr := f.denylist.Release(ctx, result.ID); relErr != nil {
				f.logger.Error("failed to release reset token", zap.String("subject", result.Subject), zap.Error(relErr))
			}
		}
		return "", err
	}

	f.logger.Info("password updated via reset token", zap.String("subject", result.Subject))
	return result.Subject, nil
}

func (f *Flow) updatePassword(ctx context.Context, subject, newPassword string) error {
	apply := func(ctx context.Context, store *credentials.Store) error {
		user, err := store.LookupUser(ctx, subject)
		if err != nil {
			if services.IsNotFoundError(err) {
				return invalidToken(err)
			}
			return err
		}
		if user.Status == models.StatusDeactivated {
			return invalidToken(services.ErrAccountDisabled)
		}
		return store.SetPassword(ctx, subject, newPassword)
	}

	if f.txMgr == nil {
		return apply(ctx, f.store)
	}
	return services.WithTransaction(ctx, f.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		return apply(ctx, f.store.WithTx(tx))
	})
}

func invalidToken(cause error) error {
	return services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidResetToken.Message, cause)
}
