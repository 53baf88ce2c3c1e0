package telemetry

import (
	"context"
	"time"

	auditdomain "refresh-session-service/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after gRPC GracefulStop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Use after a unit of work has committed; the entries are already durable in audit_logs.
//
// emitter may be nil and entries may be empty; EmitAsync then returns without starting a goroutine.
// The goroutine uses a context detached from ctx so request cancellation does not abort in-flight emits,
// while trace correlation from ctx is kept.
func EmitAsync(emitter EventEmitter, ctx context.Context, entries ...*auditdomain.AuditLog) {
	if emitter == nil || len(entries) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(detached, emitTimeout)
		defer cancel()
		emitter.Emit(emitCtx, entries...)
	}()
}
