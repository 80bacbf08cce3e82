package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/models"
	"github.com/hrapp/hr-auth/repositories"
)

// AuthEventRepository implements the repositories.AuthEventRepository interface
type AuthEventRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new auth event
func (r *AuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (
			id, type, subject, details, ip_address, user_agent, request_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var details interface{}
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	_, err := GetExecutor(ctx, r.db, r.tx).ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Subject,
		details,
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted", zap.String("id", event.ID.String()), zap.String("type", string(event.Type)))
	return nil
}

// ListBySubject retrieves the most recent events for a subject
func (r *AuthEventRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]*models.AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, type, subject, details, ip_address, user_agent, request_id, timestamp
		FROM auth_events
		WHERE subject = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := GetExecutor(ctx, r.db, r.tx).QueryContext(ctx, query, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuthEvent
	for rows.Next() {
		ev := &models.AuthEvent{}
		var details []byte
		if err := rows.Scan(
			&ev.ID,
			&ev.Type,
			&ev.Subject,
			&details,
			&ev.IPAddress,
			&ev.UserAgent,
			&ev.RequestID,
			&ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		ev.Details = details
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth event rows: %w", err)
	}

	return events, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *AuthEventRepository) WithTx(tx repositories.Transaction) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}
