package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"refresh-session-service/internal/audit"
	auditdomain "refresh-session-service/internal/audit/domain"
	"refresh-session-service/internal/denylist"
	"refresh-session-service/internal/security"
	sessiondomain "refresh-session-service/internal/session/domain"
	sessionrepo "refresh-session-service/internal/session/repository"
	"refresh-session-service/internal/telemetry"
	userdomain "refresh-session-service/internal/user/domain"
)

// Sentinel errors for the auth service; the handler maps them to gRPC codes.
// Every AuthenticationError wraps ErrAuthentication and is reported to callers with one fixed message.
var (
	ErrAuthentication      = errors.New("authentication failed")
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid or expired refresh token", ErrAuthentication)
	// ErrPersistence wraps failures of the session store or identity store. No partial state is
	// left behind when it is returned from a unit of work.
	ErrPersistence = errors.New("session storage failure")
)

// errRotationLost aborts a rotation whose predecessor was consumed by a concurrent caller.
var errRotationLost = errors.New("refresh session already consumed")

// errAlreadyRevoked aborts a logout whose session was revoked by a concurrent caller.
var errAlreadyRevoked = errors.New("refresh session already revoked")

// maxChainWalk bounds the walk from a replayed session to its chain head.
const maxChainWalk = 1024

const tracerName = "refresh-session-service/identity"

// Rejection reasons, logged server side only.
const (
	reasonNotFound      = "not_found"
	reasonRevoked       = "revoked"
	reasonReplayed      = "replayed"
	reasonExpired       = "expired"
	reasonUserInactive  = "user_inactive"
	reasonConcurrent    = "concurrent_rotation"
	reasonUnknownUser   = "unknown_user"
	reasonWrongPassword = "wrong_password"
)

// IdentityStore is the external identity capability the lifecycle depends on.
type IdentityStore interface {
	FindUserByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetUserByID(ctx context.Context, id string) (*userdomain.User, error)
	// VerifyPassword must do the same hashing work whether or not user is nil or has a password,
	// and reports false for a nil user.
	VerifyPassword(ctx context.Context, user *userdomain.User, password string) (bool, error)
	RolesOf(ctx context.Context, user *userdomain.User) ([]string, error)
}

// AuthResult holds the outcome of Login and Refresh. RefreshToken is the plaintext session token;
// it is returned to the caller once and never stored.
type AuthResult struct {
	AccessToken      string
	AccessTokenID    string
	ExpiresAt        time.Time
	ExpiresIn        time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	UserID           string
}

// Options carries the optional collaborators of AuthService. The zero value is usable.
type Options struct {
	// Denylist receives the access token id of every revoked session. Defaults to denylist.Noop.
	Denylist denylist.Denylist
	// Emitter mirrors committed audit entries (asynchronously). May be nil.
	Emitter telemetry.EventEmitter
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	// RevokeChainOnReuse revokes the current head of a rotation chain when an already rotated
	// token from that chain is presented again.
	RevokeChainOnReuse bool
	// StorageTimeout bounds the storage work of one operation. Operations run detached from the
	// caller's cancellation and stop only at this deadline. Defaults to 10s.
	StorageTimeout time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

const defaultStorageTimeout = 10 * time.Second

// AuthService is the refresh session lifecycle: login, rotation, logout.
// It is safe for concurrent use; all shared state lives in the session store.
type AuthService struct {
	identities  IdentityStore
	sessions    sessionrepo.Repository
	tokens      *security.TokenProvider
	refreshTTL  time.Duration
	denylist    denylist.Denylist
	emitter     telemetry.EventEmitter
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	revokeChain bool
	timeout     time.Duration
	now         func() time.Time
	tracer      trace.Tracer
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	identities IdentityStore,
	sessions sessionrepo.Repository,
	tokens *security.TokenProvider,
	refreshTTL time.Duration,
	opts Options,
) *AuthService {
	s := &AuthService{
		identities:  identities,
		sessions:    sessions,
		tokens:      tokens,
		refreshTTL:  refreshTTL,
		denylist:    opts.Denylist,
		emitter:     opts.Emitter,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		revokeChain: opts.RevokeChainOnReuse,
		timeout:     opts.StorageTimeout,
		now:         opts.Now,
		tracer:      otel.Tracer(tracerName),
	}
	if s.denylist == nil {
		s.denylist = denylist.Noop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.timeout <= 0 {
		s.timeout = defaultStorageTimeout
	}
	return s
}

// Login verifies email and password, then opens a new refresh session carrying meta.
// Unknown user, inactive user and wrong password all return ErrInvalidCredentials, and all of them
// pay for one password verification. Metadata longer than its column is cut.
func (s *AuthService) Login(ctx context.Context, email, password string, meta sessiondomain.DeviceMetadata, correlationID string) (res *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer func() { s.finish(span, "login", err) }()
	ctx, cancel := s.detach(ctx)
	defer cancel()

	user, err := s.identities.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, persistenceErr("login: find user", err)
	}
	ok, err := s.identities.VerifyPassword(ctx, user, password)
	if err != nil {
		return nil, persistenceErr("login: verify password", err)
	}
	switch {
	case user == nil:
		return nil, s.rejectLogin(reasonUnknownUser, "")
	case !user.IsActive():
		return nil, s.rejectLogin(reasonUserInactive, user.ID)
	case !ok:
		return nil, s.rejectLogin(reasonWrongPassword, user.ID)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	roles, err := s.identities.RolesOf(ctx, user)
	if err != nil {
		return nil, persistenceErr("login: roles", err)
	}
	now := s.now().UTC()
	meta = meta.Clamped()
	sess, res, err := s.mint(user, roles, meta, now)
	if err != nil {
		return nil, err
	}
	entry := audit.NewEntry(user.ID, audit.ActionLogin, sess.ID, map[string]string{
		"device":     meta.Device,
		"ip_address": meta.IPAddress,
	}, correlationID, now)
	err = s.sessions.WithinTx(ctx, func(tx sessionrepo.Tx) error {
		if err := tx.Create(ctx, sess); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, persistenceErr("login: create session", err)
	}
	telemetry.EmitAsync(s.emitter, ctx, entry)
	s.logger.Info().Str("user_id", user.ID).Str("session_id", sess.ID).Msg("login")
	return res, nil
}

// Refresh rotates the refresh token: the presented session is revoked and replaced by a new one
// in a single unit of work, and a new access token is issued. Any unusable token (unknown, revoked,
// expired, owner inactive, or consumed by a concurrent rotation) returns ErrInvalidRefreshToken.
// An empty token is malformed input and returns security.ErrEmptyRefreshToken, as in Logout.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, correlationID string) (res *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	defer func() { s.finish(span, "refresh", err) }()
	ctx, cancel := s.detach(ctx)
	defer cancel()

	fingerprint, err := security.HashRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	pred, err := s.sessions.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, persistenceErr("refresh: lookup", err)
	}
	now := s.now().UTC()
	switch {
	case pred == nil:
		return nil, s.rejectRefresh(reasonNotFound, nil)
	case !security.RefreshTokenHashEqual(refreshToken, pred.Fingerprint):
		return nil, s.rejectRefresh(reasonNotFound, nil)
	case pred.WasRotated():
		s.handleReuse(ctx, pred, correlationID, now)
		return nil, s.rejectRefresh(reasonReplayed, pred)
	case pred.IsRevoked():
		return nil, s.rejectRefresh(reasonRevoked, pred)
	case !pred.IsUsable(now):
		return nil, s.rejectRefresh(reasonExpired, pred)
	}
	span.SetAttributes(attribute.String("user.id", pred.UserID), attribute.String("session.id", pred.ID))

	user, err := s.identities.GetUserByID(ctx, pred.UserID)
	if err != nil {
		return nil, persistenceErr("refresh: find user", err)
	}
	if user == nil || !user.IsActive() {
		return nil, s.rejectRefresh(reasonUserInactive, pred)
	}
	roles, err := s.identities.RolesOf(ctx, user)
	if err != nil {
		return nil, persistenceErr("refresh: roles", err)
	}
	succ, res, err := s.mint(user, roles, pred.DeviceMetadata, now)
	if err != nil {
		return nil, err
	}
	entry := audit.NewEntry(user.ID, audit.ActionRotated, succ.ID, map[string]string{
		"replaced_session_id": pred.ID,
		"session_id":          succ.ID,
	}, correlationID, now)

	err = s.sessions.WithinTx(ctx, func(tx sessionrepo.Tx) error {
		cur, err := tx.GetByIDForUpdate(ctx, pred.ID)
		if err != nil {
			return err
		}
		if cur == nil || !cur.IsUsable(now) {
			return errRotationLost
		}
		if err := tx.Create(ctx, succ); err != nil {
			return err
		}
		won, err := tx.Revoke(ctx, pred.ID, now, succ.ID)
		if err != nil {
			return err
		}
		if !won {
			return errRotationLost
		}
		return tx.AppendAudit(ctx, entry)
	})
	if errors.Is(err, errRotationLost) {
		return nil, s.rejectRefresh(reasonConcurrent, pred)
	}
	if err != nil {
		return nil, persistenceErr("refresh: rotate", err)
	}
	telemetry.EmitAsync(s.emitter, ctx, entry)
	s.logger.Info().Str("user_id", user.ID).Str("replaced_session_id", pred.ID).Str("session_id", succ.ID).Msg("refresh token rotated")
	return res, nil
}

// Logout revokes the session of refreshToken. Unknown and already revoked tokens are a no-op.
// An empty token is malformed input and returns security.ErrEmptyRefreshToken, as in Refresh.
func (s *AuthService) Logout(ctx context.Context, refreshToken, correlationID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer func() { s.finish(span, "logout", err) }()
	ctx, cancel := s.detach(ctx)
	defer cancel()

	fingerprint, err := security.HashRefreshToken(refreshToken)
	if err != nil {
		return err
	}
	sess, err := s.sessions.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return persistenceErr("logout: lookup", err)
	}
	if sess == nil || sess.IsRevoked() {
		return nil
	}
	now := s.now().UTC()
	entry := audit.NewEntry(sess.UserID, audit.ActionLogout, sess.ID, nil, correlationID, now)
	err = s.sessions.WithinTx(ctx, func(tx sessionrepo.Tx) error {
		won, err := tx.Revoke(ctx, sess.ID, now, "")
		if err != nil {
			return err
		}
		if !won {
			return errAlreadyRevoked
		}
		return tx.AppendAudit(ctx, entry)
	})
	if errors.Is(err, errAlreadyRevoked) {
		return nil
	}
	if err != nil {
		return persistenceErr("logout: revoke", err)
	}
	telemetry.EmitAsync(s.emitter, ctx, entry)
	s.denyAccessToken(ctx, sess)
	s.logger.Info().Str("user_id", sess.UserID).Str("session_id", sess.ID).Msg("logout")
	return nil
}

// LogoutAll revokes every unrevoked session of userID and returns how many were revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID, correlationID string) (n int, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.LogoutAll", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { s.finish(span, "logout_all", err) }()
	ctx, cancel := s.detach(ctx)
	defer cancel()

	now := s.now().UTC()
	var revoked []*sessiondomain.Session
	var entry *auditdomain.AuditLog
	err = s.sessions.WithinTx(ctx, func(tx sessionrepo.Tx) error {
		var err error
		revoked, err = tx.RevokeAllByUser(ctx, userID, now)
		if err != nil || len(revoked) == 0 {
			return err
		}
		entry = audit.NewEntry(userID, audit.ActionLogoutAll, "", map[string]string{
			"revoked_count": strconv.Itoa(len(revoked)),
		}, correlationID, now)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return 0, persistenceErr("logout all: revoke", err)
	}
	if entry != nil {
		telemetry.EmitAsync(s.emitter, ctx, entry)
	}
	for _, sess := range revoked {
		s.denyAccessToken(ctx, sess)
	}
	s.logger.Info().Str("user_id", userID).Int("revoked", len(revoked)).Msg("logout all")
	return len(revoked), nil
}

// ListSessions returns the active sessions of userID, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ListSessions", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()
	sessions, err := s.sessions.ListActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		span.SetStatus(otelcodes.Error, "list sessions failed")
		return nil, persistenceErr("list sessions", err)
	}
	return sessions, nil
}

// detach returns a context that keeps ctx's values but not its cancellation, bounded by the
// storage timeout. A started operation runs to commit or rollback even if the caller goes away.
func (s *AuthService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// mint issues an access token and a new refresh token for user and builds the session record
// that will hold the refresh token's fingerprint.
func (s *AuthService) mint(user *userdomain.User, roles []string, meta sessiondomain.DeviceMetadata, now time.Time) (*sessiondomain.Session, *AuthResult, error) {
	accessToken, jti, accessExp, err := s.tokens.IssueAccess(user.ID, user.DisplayName(), roles)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, nil, err
	}
	fingerprint, err := security.HashRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	sess := &sessiondomain.Session{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Fingerprint:    fingerprint,
		AccessTokenID:  jti,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.refreshTTL),
		DeviceMetadata: meta,
	}
	return sess, &AuthResult{
		AccessToken:      accessToken,
		AccessTokenID:    jti,
		ExpiresAt:        accessExp,
		ExpiresIn:        s.tokens.AccessTTL(),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: sess.ExpiresAt,
		SessionID:        sess.ID,
		UserID:           user.ID,
	}, nil
}

// handleReuse records the replay of an already rotated token and, when configured, revokes the
// current head of its chain. Failures are logged; the caller is rejected either way.
func (s *AuthService) handleReuse(ctx context.Context, replayed *sessiondomain.Session, correlationID string, now time.Time) {
	s.metrics.ReuseDetected()
	var head *sessiondomain.Session
	var entry *auditdomain.AuditLog
	err := s.sessions.WithinTx(ctx, func(tx sessionrepo.Tx) error {
		head = nil
		if s.revokeChain {
			var err error
			if head, err = s.revokeChainHead(ctx, tx, replayed.ReplacedBy, now); err != nil {
				return err
			}
		}
		data := map[string]string{"replaced_by": replayed.ReplacedBy}
		if head != nil {
			data["revoked_session_id"] = head.ID
		}
		entry = audit.NewEntry(replayed.UserID, audit.ActionReuseDetected, replayed.ID, data, correlationID, now)
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", replayed.ID).Msg("record refresh token reuse")
		return
	}
	ev := s.logger.Warn().Str("user_id", replayed.UserID).Str("session_id", replayed.ID)
	if head != nil {
		ev = ev.Str("revoked_session_id", head.ID)
		s.denyAccessToken(ctx, head)
	}
	ev.Msg("refresh token reuse detected")
	telemetry.EmitAsync(s.emitter, ctx, entry)
}

// revokeChainHead follows replaced_by from id and revokes the first unrevoked session found.
// Returns nil when the chain has no live head.
func (s *AuthService) revokeChainHead(ctx context.Context, tx sessionrepo.Tx, id string, now time.Time) (*sessiondomain.Session, error) {
	for i := 0; id != "" && i < maxChainWalk; i++ {
		cur, err := tx.GetByIDForUpdate(ctx, id)
		if err != nil || cur == nil {
			return nil, err
		}
		if !cur.IsRevoked() {
			won, err := tx.Revoke(ctx, cur.ID, now, "")
			if err != nil || !won {
				return nil, err
			}
			cur.RevokedAt = &now
			return cur, nil
		}
		id = cur.ReplacedBy
	}
	return nil, nil
}

// denyAccessToken denylists the access token issued with sess until it would expire.
// Failures are logged only.
func (s *AuthService) denyAccessToken(ctx context.Context, sess *sessiondomain.Session) {
	if sess.AccessTokenID == "" {
		return
	}
	expiresAt := sess.CreatedAt.Add(s.tokens.AccessTTL())
	if err := s.denylist.Add(ctx, sess.AccessTokenID, expiresAt); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("denylist access token")
	}
}

func (s *AuthService) rejectLogin(reason, userID string) error {
	s.logger.Debug().Str("reason", reason).Str("user_id", userID).Msg("login rejected")
	return ErrInvalidCredentials
}

func (s *AuthService) rejectRefresh(reason string, sess *sessiondomain.Session) error {
	ev := s.logger.Debug()
	if reason == reasonReplayed || reason == reasonConcurrent {
		ev = s.logger.Warn()
	}
	if sess != nil {
		ev = ev.Str("session_id", sess.ID).Str("user_id", sess.UserID).Str("fingerprint_prefix", sess.Fingerprint[:min(8, len(sess.Fingerprint))])
	}
	ev.Str("reason", reason).Msg("refresh rejected")
	return ErrInvalidRefreshToken
}

// finish ends span and counts the operation outcome.
func (s *AuthService) finish(span trace.Span, op string, err error) {
	defer span.End()
	switch {
	case err == nil:
		s.metrics.Observe(op, telemetry.OutcomeSuccess)
	case errors.Is(err, ErrAuthentication):
		s.metrics.Observe(op, telemetry.OutcomeRejected)
		span.SetStatus(otelcodes.Error, "rejected")
	default:
		s.metrics.Observe(op, telemetry.OutcomeError)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
