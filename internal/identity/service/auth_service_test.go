package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"refresh-session-service/internal/audit"
	auditdomain "refresh-session-service/internal/audit/domain"
	"refresh-session-service/internal/security"
	sessiondomain "refresh-session-service/internal/session/domain"
	sessionrepo "refresh-session-service/internal/session/repository"
	userdomain "refresh-session-service/internal/user/domain"
)

type memIdentityStore struct {
	mu        sync.Mutex
	byID      map[string]*userdomain.User
	passwords map[string]string
	roles     map[string][]string
	err       error
	verified  []string // user id per VerifyPassword call; "" for a nil user
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{
		byID:      make(map[string]*userdomain.User),
		passwords: make(map[string]string),
		roles:     make(map[string][]string),
	}
}

func (s *memIdentityStore) add(id, email, password string, status userdomain.UserStatus, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = &userdomain.User{ID: id, Email: email, Status: status}
	s.passwords[id] = password
	s.roles[id] = roles
}

func (s *memIdentityStore) setStatus(id string, status userdomain.UserStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].Status = status
}

func (s *memIdentityStore) FindUserByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memIdentityStore) GetUserByID(ctx context.Context, id string) (*userdomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (s *memIdentityStore) VerifyPassword(ctx context.Context, user *userdomain.User, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == nil {
		s.verified = append(s.verified, "")
		return false, nil
	}
	s.verified = append(s.verified, user.ID)
	return s.passwords[user.ID] == password, nil
}

func (s *memIdentityStore) RolesOf(ctx context.Context, user *userdomain.User) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[user.ID], nil
}

type recordingDenylist struct {
	mu   sync.Mutex
	jtis map[string]time.Time
}

func (d *recordingDenylist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jtis[jti] = expiresAt
	return nil
}

func (d *recordingDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.jtis[jti]
	return ok, nil
}

// failingRepo fails every unit of work after delegating reads to the embedded repository.
type failingRepo struct {
	*sessionrepo.MemoryRepository
	err error
}

func (r *failingRepo) WithinTx(ctx context.Context, fn func(tx sessionrepo.Tx) error) error {
	return r.MemoryRepository.WithinTx(ctx, func(tx sessionrepo.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return r.err
	})
}

type testEnv struct {
	svc      *AuthService
	users    *memIdentityStore
	sessions *sessionrepo.MemoryRepository
	denied   *recordingDenylist
	tokens   *security.TokenProvider
	now      time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    newMemIdentityStore(),
		sessions: sessionrepo.NewMemoryRepository(),
		denied:   &recordingDenylist{jtis: make(map[string]time.Time)},
		now:      time.Now().UTC(),
	}
	env.tokens = security.NewTestHMACTokenProvider().WithClock(func() time.Time { return env.now })
	env.users.add("user-1", "a@x.com", "correct", userdomain.UserStatusActive, "user", "admin")
	opts.Denylist = env.denied
	opts.Logger = zerolog.Nop()
	opts.Now = func() time.Time { return env.now }
	env.svc = NewAuthService(env.users, env.sessions, env.tokens, 30*24*time.Hour, opts)
	return env
}

var device = sessiondomain.DeviceMetadata{Device: "pixel", IPAddress: "203.0.113.7", UserAgent: "app/1.0"}

func (e *testEnv) login(t *testing.T) *AuthResult {
	t.Helper()
	res, err := e.svc.Login(context.Background(), "a@x.com", "correct", device, "corr-login")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}

func (e *testEnv) sessionOf(t *testing.T, refreshToken string) *sessiondomain.Session {
	t.Helper()
	fp, err := security.HashRefreshToken(refreshToken)
	if err != nil {
		t.Fatalf("HashRefreshToken: %v", err)
	}
	s, err := e.sessions.GetByFingerprint(context.Background(), fp)
	if err != nil {
		t.Fatalf("GetByFingerprint: %v", err)
	}
	return s
}

func auditActions(logs []*auditdomain.AuditLog) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Action
	}
	return out
}

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t, Options{})
	res := env.login(t)

	if got := res.ExpiresAt.Sub(env.now); got != 15*time.Minute {
		t.Errorf("access token lifetime = %v, want 15m", got)
	}
	if len(res.RefreshToken) != 86 {
		t.Errorf("refresh token length = %d, want 86 (64 bytes base64url)", len(res.RefreshToken))
	}
	sess := env.sessionOf(t, res.RefreshToken)
	if sess == nil {
		t.Fatal("no session stored for the returned refresh token")
	}
	if sess.StateAt(env.now) != sessiondomain.StateActive {
		t.Errorf("session state = %s, want active", sess.StateAt(env.now))
	}
	if sess.ID != res.SessionID || sess.UserID != "user-1" || sess.AccessTokenID != res.AccessTokenID {
		t.Errorf("session = %+v, result = %+v", sess, res)
	}
	if sess.DeviceMetadata != device {
		t.Errorf("device metadata = %+v, want %+v", sess.DeviceMetadata, device)
	}
	if want := env.now.Add(30 * 24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, want)
	}
	if sess.Fingerprint == res.RefreshToken {
		t.Error("plaintext refresh token stored")
	}

	claims, err := env.tokens.ValidateAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != "user-1" || claims.UniqueName != "a@x.com" || claims.ID != res.AccessTokenID {
		t.Errorf("claims = %+v", claims)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" || claims.Roles[1] != "user" {
		t.Errorf("roles = %v", claims.Roles)
	}

	logs := env.sessions.AuditLogs()
	if len(logs) != 1 || logs[0].Action != audit.ActionLogin || logs[0].CorrelationID != "corr-login" {
		t.Errorf("audit = %+v", logs)
	}
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.users.add("user-2", "off@x.com", "correct", userdomain.UserStatusDisabled)

	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown user", "nobody@x.com", "correct"},
		{"inactive user", "off@x.com", "correct"},
		{"wrong password", "a@x.com", "wrong"},
	}
	var messages []string
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Login(context.Background(), tc.email, tc.password, device, "")
			if err != ErrInvalidCredentials {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
			if !errors.Is(err, ErrAuthentication) {
				t.Error("ErrInvalidCredentials should wrap ErrAuthentication")
			}
			messages = append(messages, err.Error())
		})
	}
	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Errorf("messages differ: %q vs %q", m, messages[0])
		}
	}
	if n := len(env.sessions.AuditLogs()); n != 0 {
		t.Errorf("audit entries after failed logins = %d, want 0", n)
	}
	if want := []string{"", "user-2", "user-1"}; !slices.Equal(env.users.verified, want) {
		t.Errorf("password verifications = %q, want %q", env.users.verified, want)
	}
}

func TestAuthService_LoginIdentityStoreFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.users.err = errors.New("connection refused")
	_, err := env.svc.Login(context.Background(), "a@x.com", "correct", device, "")
	if !errors.Is(err, ErrPersistence) || errors.Is(err, ErrAuthentication) {
		t.Errorf("err = %v, want ErrPersistence", err)
	}
}

func TestAuthService_LoginMissingSigningKey(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.svc.tokens = security.NewHMACTokenProvider(nil, "iss", "aud", 15*time.Minute)
	_, err := env.svc.Login(context.Background(), "a@x.com", "correct", device, "")
	if !errors.Is(err, security.ErrSigningKeyMissing) {
		t.Errorf("err = %v, want ErrSigningKeyMissing", err)
	}
}

func TestAuthService_RefreshRotates(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.login(t)
	env.advance(time.Minute)

	second, err := env.svc.Refresh(context.Background(), first.RefreshToken, "corr-refresh")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.SessionID == first.SessionID {
		t.Fatal("Refresh must return a new refresh token and session")
	}
	if second.AccessTokenID == first.AccessTokenID {
		t.Error("Refresh must issue a new access token")
	}

	pred, _ := env.sessions.GetByID(context.Background(), first.SessionID)
	if !pred.WasRotated() || pred.ReplacedBy != second.SessionID || !pred.RevokedAt.Equal(env.now) {
		t.Errorf("predecessor = %+v, want revoked and replaced by %s", pred, second.SessionID)
	}
	succ := env.sessionOf(t, second.RefreshToken)
	if succ == nil || succ.ID != second.SessionID || succ.IsRevoked() {
		t.Fatalf("successor = %+v", succ)
	}
	if succ.DeviceMetadata != pred.DeviceMetadata {
		t.Errorf("successor metadata = %+v, want %+v", succ.DeviceMetadata, pred.DeviceMetadata)
	}
	if succ.ID == pred.ID || succ.ReplacedBy != "" {
		t.Errorf("successor chain fields = %+v", succ)
	}

	logs := env.sessions.AuditLogs()
	if len(logs) != 2 || logs[1].Action != audit.ActionRotated {
		t.Fatalf("audit = %v", auditActions(logs))
	}
	if logs[1].EntityID != second.SessionID || logs[1].CorrelationID != "corr-refresh" {
		t.Errorf("rotation audit = %+v", logs[1])
	}
}

func TestAuthService_RefreshChainPreservesMetadata(t *testing.T) {
	env := newTestEnv(t, Options{})
	res := env.login(t)
	for i := 0; i < 5; i++ {
		next, err := env.svc.Refresh(context.Background(), res.RefreshToken, "")
		if err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
		res = next
	}
	active, _ := env.sessions.ListActiveByUser(context.Background(), "user-1", env.now)
	if len(active) != 1 || active[0].ID != res.SessionID {
		t.Fatalf("active sessions = %d, want exactly the chain head", len(active))
	}
	if active[0].DeviceMetadata != device {
		t.Errorf("head metadata = %+v, want %+v", active[0].DeviceMetadata, device)
	}
}

func TestAuthService_RefreshIsSingleUse(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.login(t)
	if _, err := env.svc.Refresh(context.Background(), first.RefreshToken, ""); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	before, _ := env.sessions.ListActiveByUser(context.Background(), "user-1", env.now)

	_, err := env.svc.Refresh(context.Background(), first.RefreshToken, "")
	if err != ErrInvalidRefreshToken {
		t.Fatalf("second Refresh err = %v, want ErrInvalidRefreshToken", err)
	}
	after, _ := env.sessions.ListActiveByUser(context.Background(), "user-1", env.now)
	if len(after) != len(before) {
		t.Errorf("replay created a session: %d active, want %d", len(after), len(before))
	}
	logs := env.sessions.AuditLogs()
	if last := logs[len(logs)-1]; last.Action != audit.ActionReuseDetected || last.EntityID != first.SessionID {
		t.Errorf("last audit = %+v, want reuse detected on %s", last, first.SessionID)
	}
}

func TestAuthService_RefreshConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.login(t)

	const racers = 16
	var wins, rejected atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.Refresh(context.Background(), first.RefreshToken, "")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrInvalidRefreshToken):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 || rejected.Load() != racers-1 {
		t.Fatalf("wins = %d, rejected = %d; want 1 and %d", wins.Load(), rejected.Load(), racers-1)
	}
	active, _ := env.sessions.ListActiveByUser(context.Background(), "user-1", env.now)
	if len(active) != 1 {
		t.Errorf("active sessions = %d, want 1", len(active))
	}
	rotations := 0
	for _, l := range env.sessions.AuditLogs() {
		if l.Action == audit.ActionRotated {
			rotations++
		}
	}
	if rotations != 1 {
		t.Errorf("rotation audit entries = %d, want 1", rotations)
	}
}

func TestAuthService_RefreshRejections(t *testing.T) {
	env := newTestEnv(t, Options{})

	revoked := env.login(t)
	if err := env.svc.Logout(context.Background(), revoked.RefreshToken, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	expired := env.login(t)
	env.advance(31 * 24 * time.Hour)
	inactive := func() string {
		env.users.add("user-3", "c@x.com", "pw", userdomain.UserStatusActive)
		res, err := env.svc.Login(context.Background(), "c@x.com", "pw", device, "")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		env.users.setStatus("user-3", userdomain.UserStatusDisabled)
		return res.RefreshToken
	}()

	testCases := []struct {
		name  string
		token string
	}{
		{"never issued", "never-issued-garbage"},
		{"revoked by logout", revoked.RefreshToken},
		{"expired but not revoked", expired.RefreshToken},
		{"owner inactive", inactive},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Refresh(context.Background(), tc.token, "")
			if err != ErrInvalidRefreshToken {
				t.Errorf("err = %v, want ErrInvalidRefreshToken", err)
			}
		})
	}
	if s := env.sessionOf(t, expired.RefreshToken); s.IsRevoked() {
		t.Error("rejecting an expired token must not revoke it")
	}
}

// mislookupRepo returns the session of another token from every fingerprint lookup.
type mislookupRepo struct {
	*sessionrepo.MemoryRepository
	other *sessiondomain.Session
}

func (r *mislookupRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*sessiondomain.Session, error) {
	return r.other, nil
}

func TestAuthService_RefreshRejectsFingerprintMismatch(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.login(t)
	second := env.login(t)
	env.svc.sessions = &mislookupRepo{MemoryRepository: env.sessions, other: env.sessionOf(t, second.RefreshToken)}

	if _, err := env.svc.Refresh(context.Background(), first.RefreshToken, ""); err != ErrInvalidRefreshToken {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
	if s := env.sessionOf(t, second.RefreshToken); s.IsRevoked() {
		t.Error("session of another token must not be rotated")
	}
}

func TestAuthService_RefreshPersistenceFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.login(t)

	boom := errors.New("tx aborted")
	env.svc.sessions = &failingRepo{MemoryRepository: env.sessions, err: boom}
	_, err := env.svc.Refresh(context.Background(), first.RefreshToken, "")
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrPersistence wrapping cause", err)
	}
	if errors.Is(err, ErrAuthentication) {
		t.Error("persistence failure must not look like an authentication failure")
	}
	pred := env.sessionOf(t, first.RefreshToken)
	if pred.IsRevoked() {
		t.Error("predecessor revoked despite rollback")
	}
	if logs := env.sessions.AuditLogs(); len(logs) != 1 {
		t.Errorf("audit = %v, want only the login", auditActions(logs))
	}

	env.svc.sessions = env.sessions
	if _, err := env.svc.Refresh(context.Background(), first.RefreshToken, ""); err != nil {
		t.Errorf("Refresh after failure: %v", err)
	}
}

func TestAuthService_ReuseRevokesChainHead(t *testing.T) {
	env := newTestEnv(t, Options{RevokeChainOnReuse: true})
	first := env.login(t)
	second, err := env.svc.Refresh(context.Background(), first.RefreshToken, "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	third, err := env.svc.Refresh(context.Background(), second.RefreshToken, "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := env.svc.Refresh(context.Background(), first.RefreshToken, ""); err != ErrInvalidRefreshToken {
		t.Fatalf("replay err = %v, want ErrInvalidRefreshToken", err)
	}
	head := env.sessionOf(t, third.RefreshToken)
	if !head.IsRevoked() || head.ReplacedBy != "" {
		t.Errorf("chain head = %+v, want revoked without successor", head)
	}
	if ok, _ := env.denied.Contains(context.Background(), third.AccessTokenID); !ok {
		t.Error("chain head access token not denylisted")
	}
	if _, err := env.svc.Refresh(context.Background(), third.RefreshToken, ""); err != ErrInvalidRefreshToken {
		t.Errorf("head refresh after reuse err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestAuthService_ReuseWithoutChainRevocationKeepsHead(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.login(t)
	second, _ := env.svc.Refresh(context.Background(), first.RefreshToken, "")
	_, _ = env.svc.Refresh(context.Background(), first.RefreshToken, "")

	if head := env.sessionOf(t, second.RefreshToken); head.IsRevoked() {
		t.Error("chain head revoked although chain revocation is disabled")
	}
}

func TestAuthService_LogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, Options{})
	res := env.login(t)

	for i := 0; i < 2; i++ {
		if err := env.svc.Logout(context.Background(), res.RefreshToken, "corr-logout"); err != nil {
			t.Fatalf("Logout %d: %v", i, err)
		}
	}
	sess := env.sessionOf(t, res.RefreshToken)
	if !sess.IsRevoked() || sess.ReplacedBy != "" {
		t.Errorf("session = %+v, want revoked without successor", sess)
	}
	logouts := 0
	for _, l := range env.sessions.AuditLogs() {
		if l.Action == audit.ActionLogout {
			logouts++
			if l.CorrelationID != "corr-logout" {
				t.Errorf("logout correlation id = %q", l.CorrelationID)
			}
		}
	}
	if logouts != 1 {
		t.Errorf("logout audit entries = %d, want 1", logouts)
	}
	exp, ok := env.denied.jtis[res.AccessTokenID]
	if !ok || !exp.Equal(res.ExpiresAt) {
		t.Errorf("denylisted until %v (%v), want %v", exp, ok, res.ExpiresAt)
	}
}

func TestAuthService_LogoutNeverIssued(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.login(t)
	before := len(env.sessions.AuditLogs())

	if err := env.svc.Logout(context.Background(), "never-issued-garbage", ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if after := len(env.sessions.AuditLogs()); after != before {
		t.Errorf("audit entries changed: %d -> %d", before, after)
	}
	if active, _ := env.sessions.ListActiveByUser(context.Background(), "user-1", env.now); len(active) != 1 {
		t.Errorf("active sessions = %d, want 1", len(active))
	}
}

func TestAuthService_EmptyTokenIsValidationError(t *testing.T) {
	env := newTestEnv(t, Options{})
	if err := env.svc.Logout(context.Background(), "", ""); !errors.Is(err, security.ErrEmptyRefreshToken) {
		t.Errorf("Logout err = %v, want ErrEmptyRefreshToken", err)
	}
	if _, err := env.svc.Refresh(context.Background(), "", ""); !errors.Is(err, security.ErrEmptyRefreshToken) {
		t.Errorf("Refresh err = %v, want ErrEmptyRefreshToken", err)
	}
}

func TestAuthService_CancelledCallerStillCommits(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.login(t)
	second := env.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.svc.Refresh(ctx, first.RefreshToken, "")
	if err != nil {
		t.Fatalf("Refresh with cancelled ctx: %v", err)
	}
	if pred := env.sessionOf(t, first.RefreshToken); !pred.WasRotated() || pred.ReplacedBy != res.SessionID {
		t.Errorf("predecessor = %+v, want rotated into %s", pred, res.SessionID)
	}
	if err := env.svc.Logout(ctx, second.RefreshToken, ""); err != nil {
		t.Fatalf("Logout with cancelled ctx: %v", err)
	}
	if s := env.sessionOf(t, second.RefreshToken); !s.IsRevoked() {
		t.Error("logout with cancelled ctx did not revoke the session")
	}
	if _, ok := env.denied.jtis[second.AccessTokenID]; !ok {
		t.Error("logout with cancelled ctx did not denylist the access token")
	}
}

// stalledRepo holds every unit of work until its context ends.
type stalledRepo struct {
	*sessionrepo.MemoryRepository
}

func (r *stalledRepo) WithinTx(ctx context.Context, fn func(tx sessionrepo.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAuthService_StorageTimeoutIsPersistenceError(t *testing.T) {
	env := newTestEnv(t, Options{StorageTimeout: 20 * time.Millisecond})
	env.svc.sessions = &stalledRepo{MemoryRepository: env.sessions}
	_, err := env.svc.Login(context.Background(), "a@x.com", "correct", device, "")
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want ErrPersistence wrapping DeadlineExceeded", err)
	}
}

func TestAuthService_LoginClampsOversizedMetadata(t *testing.T) {
	env := newTestEnv(t, Options{})
	meta := sessiondomain.DeviceMetadata{
		Device:    strings.Repeat("d", 300),
		IPAddress: strings.Repeat("1", 80),
		UserAgent: strings.Repeat("u", 2000),
	}
	res, err := env.svc.Login(context.Background(), "a@x.com", "correct", meta, strings.Repeat("c", 250))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sess := env.sessionOf(t, res.RefreshToken)
	if len(sess.Device) != sessiondomain.MaxDeviceLen || len(sess.IPAddress) != sessiondomain.MaxIPAddressLen || len(sess.UserAgent) != sessiondomain.MaxUserAgentLen {
		t.Errorf("stored metadata lengths = %d/%d/%d", len(sess.Device), len(sess.IPAddress), len(sess.UserAgent))
	}
	if err := env.svc.Logout(context.Background(), res.RefreshToken, strings.Repeat("c", 250)); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	for _, l := range env.sessions.AuditLogs() {
		if len(l.CorrelationID) != auditdomain.MaxCorrelationIDLen {
			t.Errorf("%s correlation id length = %d, want %d", l.Action, len(l.CorrelationID), auditdomain.MaxCorrelationIDLen)
		}
	}
}

func TestAuthService_LogoutAllAndListSessions(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.login(t)
	env.advance(time.Second)
	b := env.login(t)

	sessions, err := env.svc.ListSessions(context.Background(), "user-1")
	if err != nil || len(sessions) != 2 || sessions[0].ID != b.SessionID {
		t.Fatalf("ListSessions = %d, %v; want 2 newest first", len(sessions), err)
	}

	n, err := env.svc.LogoutAll(context.Background(), "user-1", "corr-all")
	if err != nil || n != 2 {
		t.Fatalf("LogoutAll = %d, %v; want 2", n, err)
	}
	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := env.svc.Refresh(context.Background(), tok, ""); err != ErrInvalidRefreshToken {
			t.Errorf("Refresh after LogoutAll err = %v", err)
		}
	}
	for _, jti := range []string{a.AccessTokenID, b.AccessTokenID} {
		if ok, _ := env.denied.Contains(context.Background(), jti); !ok {
			t.Errorf("access token %s not denylisted", jti)
		}
	}
	if sessions, _ := env.svc.ListSessions(context.Background(), "user-1"); len(sessions) != 0 {
		t.Errorf("sessions after LogoutAll = %d", len(sessions))
	}

	n, err = env.svc.LogoutAll(context.Background(), "user-1", "")
	if err != nil || n != 0 {
		t.Errorf("second LogoutAll = %d, %v; want 0, nil", n, err)
	}
	count := 0
	for _, l := range env.sessions.AuditLogs() {
		if l.Action == audit.ActionLogoutAll {
			count++
		}
	}
	if count != 1 {
		t.Errorf("LogoutAll audit entries = %d, want 1", count)
	}
}

type captureEmitter struct {
	mu      sync.Mutex
	actions []string
	done    chan struct{}
}

func (c *captureEmitter) Emit(_ context.Context, entries ...*auditdomain.AuditLog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.actions = append(c.actions, e.Action)
	}
	c.done <- struct{}{}
}

func TestAuthService_EmitsCommittedAudit(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{}, 4)}
	env := newTestEnv(t, Options{Emitter: em})
	env.login(t)

	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry not emitted")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.actions) != 1 || em.actions[0] != audit.ActionLogin {
		t.Errorf("emitted = %v", em.actions)
	}
}
