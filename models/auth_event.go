package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuthEventType represents the kind of authentication event being audited
type AuthEventType string

const (
	AuthEventLoginSucceeded         AuthEventType = "login_succeeded"
	AuthEventLoginFailed            AuthEventType = "login_failed"
	AuthEventTokenRefreshed         AuthEventType = "token_refreshed"
	AuthEventRefreshRejected        AuthEventType = "refresh_rejected"
	AuthEventLogout                 AuthEventType = "logout"
	AuthEventPasswordResetRequested AuthEventType = "password_reset_requested"
	AuthEventPasswordResetCompleted AuthEventType = "password_reset_completed"
	AuthEventAccessDenied           AuthEventType = "access_denied"
	AuthEventAdminBootstrapped      AuthEventType = "admin_bootstrapped"
)

// AuthEvent is an audit trail entry for the auth layer
type AuthEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Type      AuthEventType   `json:"type" db:"type"`
	Subject   string          `json:"subject" db:"subject"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuthEvent model
func (AuthEvent) TableName() string {
	return "auth_events"
}

// NewAuthEvent creates a new AuthEvent instance
func NewAuthEvent(eventType AuthEventType, subject string) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now(),
	}
}

// WithDetails sets the details
func (e *AuthEvent) WithDetails(details interface{}) *AuthEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets request metadata
func (e *AuthEvent) WithRequest(requestID, ipAddress, userAgent string) *AuthEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}
