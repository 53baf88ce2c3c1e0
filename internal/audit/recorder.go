package audit

import (
	"context"

	"github.com/rs/zerolog"

	"refresh-session-service/internal/audit/domain"
	"refresh-session-service/internal/telemetry"
)

// Recorder mirrors committed audit entries to the structured log and then to next (for example the
// OTel log pipeline). Emit is best-effort and never fails the caller.
type Recorder struct {
	logger zerolog.Logger
	next   telemetry.EventEmitter
}

// NewRecorder returns a Recorder. next may be nil; then entries only go to logger.
func NewRecorder(logger zerolog.Logger, next telemetry.EventEmitter) *Recorder {
	return &Recorder{logger: logger, next: next}
}

// Emit forwards each entry. nil entries are skipped.
func (r *Recorder) Emit(ctx context.Context, entries ...*domain.AuditLog) {
	if r == nil {
		return
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		r.logger.Info().
			Str("audit_id", e.ID).
			Str("action", e.Action).
			Str("user_id", e.UserID).
			Str("entity_id", e.EntityID).
			Str("correlation_id", e.CorrelationID).
			RawJSON("data", rawData(e.DataJSON)).
			Msg("audit")
	}
	if r.next != nil {
		r.next.Emit(ctx, entries...)
	}
}

func rawData(s string) []byte {
	if s == "" {
		return []byte("{}")
	}
	return []byte(s)
}
