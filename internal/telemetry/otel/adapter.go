package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "refresh-session-service/internal/audit/domain"
	"refresh-session-service/internal/telemetry"
)

// loggerName is the OTel instrumentation scope for audit records.
const loggerName = "refresh-session-service/audit"

// recordEmitter is the subset of otellog.Logger used by the adapter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends audit entries as OTel log records via the given
// LoggerProvider. If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(loggerName)}
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger. Used in tests.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, ...*auditdomain.AuditLog) {}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts each entry to an OTel log record and emits it. nil entries are skipped.
func (e *otelEmitter) Emit(ctx context.Context, entries ...*auditdomain.AuditLog) {
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		e.logger.Emit(ctx, toRecord(entry))
	}
}

func toRecord(entry *auditdomain.AuditLog) otellog.Record {
	rec := otellog.Record{}
	rec.SetTimestamp(entry.CreatedAt)
	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetEventName(entry.Action)
	rec.SetSeverity(otellog.SeverityInfo)
	if entry.DataJSON != "" {
		rec.SetBody(otellog.StringValue(entry.DataJSON))
	}
	rec.AddAttributes(
		otellog.String("audit_id", entry.ID),
		otellog.String("action", entry.Action),
		otellog.String("entity_name", entry.EntityName),
		otellog.String("entity_id", entry.EntityID),
	)
	if entry.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", entry.UserID))
	}
	if entry.CorrelationID != "" {
		rec.AddAttributes(otellog.String("correlation_id", entry.CorrelationID))
	}
	return rec
}
