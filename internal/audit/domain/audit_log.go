package domain

import "time"

// MaxCorrelationIDLen is the column width of audit_logs.correlation_id, in characters.
const MaxCorrelationIDLen = 100

// AuditLog is an immutable record of a security-relevant session lifecycle event.
type AuditLog struct {
	ID            string
	UserID        string // empty when the event has no actor
	Action        string
	EntityName    string
	EntityID      string
	DataJSON      string // structured payload, JSON object; empty when none
	CorrelationID string // caller-supplied trace id; empty when none
	CreatedAt     time.Time
}

// ClampCorrelationID cuts id to MaxCorrelationIDLen runes.
func ClampCorrelationID(id string) string {
	if len(id) <= MaxCorrelationIDLen {
		return id
	}
	n := 0
	for pos := range id {
		if n == MaxCorrelationIDLen {
			return id[:pos]
		}
		n++
	}
	return id
}
