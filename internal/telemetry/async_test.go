package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	auditdomain "refresh-session-service/internal/audit/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	entries []*auditdomain.AuditLog
	ctxErrs []error
}

func (m *mockEventEmitter) Emit(ctx context.Context, entries ...*auditdomain.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
}

func (m *mockEventEmitter) getEntries() []*auditdomain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

func waitForEntries(t *testing.T, m *mockEventEmitter, n int) []*auditdomain.AuditLog {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := m.getEntries(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.getEntries()
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, context.Background(), &auditdomain.AuditLog{ID: "a1"})
}

func TestEmitAsync_NoEntries(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, context.Background())

	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEntries()); n != 0 {
		t.Errorf("expected 0 entries, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, context.Background(),
		&auditdomain.AuditLog{ID: "a1", UserID: "user-1", Action: "Logout"})

	entries := waitForEntries(t, emitter, 1)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].UserID != "user-1" || entries[0].Action != "Logout" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestEmitAsync_DetachedFromRequestCancellation(t *testing.T) {
	emitter := &mockEventEmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EmitAsync(emitter, ctx, &auditdomain.AuditLog{ID: "a1"})

	if n := len(waitForEntries(t, emitter, 1)); n != 1 {
		t.Fatalf("expected 1 entry after request cancellation, got %d", n)
	}
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.ctxErrs[0] != nil {
		t.Errorf("emit context err = %v, want nil", emitter.ctxErrs[0])
	}
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, context.Background(), &auditdomain.AuditLog{Action: "Login"})
		}()
	}
	wg.Wait()

	if n := len(waitForEntries(t, emitter, 10)); n != 10 {
		t.Errorf("expected 10 entries, got %d", n)
	}
}

func TestShutdownDrainDuration(t *testing.T) {
	if ShutdownDrainDuration < emitTimeout {
		t.Errorf("ShutdownDrainDuration %v < emitTimeout %v", ShutdownDrainDuration, emitTimeout)
	}
}
