// Package audit builds and mirrors the append-only audit trail of session lifecycle events.
// Entries are persisted by the session store inside the same transaction as the state change
// they describe; the Recorder only forwards committed entries to the log pipeline.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"refresh-session-service/internal/audit/domain"
)

// Lifecycle actions recorded in audit_logs.action.
const (
	ActionLogin         = "Login"
	ActionRotated       = "RefreshTokenRotated"
	ActionLogout        = "Logout"
	ActionLogoutAll     = "LogoutAll"
	ActionReuseDetected = "RefreshTokenReuseDetected"
)

// EntityRefreshSession is the entity name used for refresh session events.
const EntityRefreshSession = "refresh_session"

// NewEntry returns a new audit log for a refresh session event. data is encoded as a JSON object;
// a nil or empty map leaves DataJSON empty. userID and correlationID may be empty; correlationID is
// cut to domain.MaxCorrelationIDLen.
func NewEntry(userID, action, sessionID string, data map[string]string, correlationID string, at time.Time) *domain.AuditLog {
	entry := &domain.AuditLog{
		ID:            uuid.New().String(),
		UserID:        userID,
		Action:        action,
		EntityName:    EntityRefreshSession,
		EntityID:      sessionID,
		CorrelationID: domain.ClampCorrelationID(correlationID),
		CreatedAt:     at.UTC(),
	}
	if len(data) > 0 {
		// map[string]string cannot fail to marshal.
		b, _ := json.Marshal(data)
		entry.DataJSON = string(b)
	}
	return entry
}
