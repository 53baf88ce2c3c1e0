package telemetry

import (
	"context"

	auditdomain "refresh-session-service/internal/audit/domain"
)

// EventEmitter forwards committed audit entries to the log pipeline (e.g. OTel Logs). Best-effort.
type EventEmitter interface {
	Emit(ctx context.Context, entries ...*auditdomain.AuditLog)
}
