package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authv1 "refresh-session-service/api/auth/v1"
	"refresh-session-service/internal/identity/service"
	"refresh-session-service/internal/security"
	"refresh-session-service/internal/server/interceptors"
	sessiondomain "refresh-session-service/internal/session/domain"
)

const tokenTypeBearer = "Bearer"

// AuthServer implements AuthService (gRPC) on top of the refresh session lifecycle.
// Proto: auth/v1/auth.proto → internal/identity/handler.
type AuthServer struct {
	authv1.UnimplementedAuthServiceServer
	auth *service.AuthService
}

// NewAuthServer returns a new Auth gRPC server. If authSvc is nil, every RPC returns Unimplemented.
func NewAuthServer(authSvc *service.AuthService) *AuthServer {
	return &AuthServer{auth: authSvc}
}

// Login authenticates with email and password and opens a refresh session for the calling device.
func (s *AuthServer) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.AuthResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	md := interceptors.GetRequestMetadata(ctx)
	// Device label: request body, then x-device-name, then the user agent.
	device := req.DeviceName
	if device == "" {
		device = md.DeviceName
	}
	if device == "" {
		device = md.UserAgent
	}
	meta := sessiondomain.DeviceMetadata{Device: device, IPAddress: md.ClientIP, UserAgent: md.UserAgent}
	res, err := s.auth.Login(ctx, req.Email, req.Password, meta, md.CorrelationID)
	if err != nil {
		return nil, authErr(err)
	}
	return authResultToProto(res), nil
}

// Refresh exchanges a refresh token for a new access token and a rotated refresh token.
func (s *AuthServer) Refresh(ctx context.Context, req *authv1.RefreshRequest) (*authv1.AuthResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	res, err := s.auth.Refresh(ctx, req.RefreshToken, interceptors.GetRequestMetadata(ctx).CorrelationID)
	if err != nil {
		return nil, authErr(err)
	}
	return authResultToProto(res), nil
}

// Logout revokes the session of the presented refresh token. Unknown or already revoked tokens succeed.
func (s *AuthServer) Logout(ctx context.Context, req *authv1.LogoutRequest) (*authv1.LogoutResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	if err := s.auth.Logout(ctx, req.RefreshToken, interceptors.GetRequestMetadata(ctx).CorrelationID); err != nil {
		return nil, authErr(err)
	}
	return &authv1.LogoutResponse{}, nil
}

// LogoutAll revokes every active session of the authenticated caller.
func (s *AuthServer) LogoutAll(ctx context.Context, req *authv1.LogoutAllRequest) (*authv1.LogoutAllResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method LogoutAll not implemented")
	}
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	n, err := s.auth.LogoutAll(ctx, userID, interceptors.GetRequestMetadata(ctx).CorrelationID)
	if err != nil {
		return nil, authErr(err)
	}
	return &authv1.LogoutAllResponse{RevokedCount: int32(n)}, nil
}

// ListSessions returns the authenticated caller's active sessions.
func (s *AuthServer) ListSessions(ctx context.Context, req *authv1.ListSessionsRequest) (*authv1.ListSessionsResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ListSessions not implemented")
	}
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	list, err := s.auth.ListSessions(ctx, userID)
	if err != nil {
		return nil, authErr(err)
	}
	out := make([]*authv1.Session, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionToProto(sess))
	}
	return &authv1.ListSessionsResponse{Sessions: out}, nil
}

// authErr maps service errors to gRPC status. Every authentication failure carries the same
// message so callers cannot tell the cause apart.
func authErr(err error) error {
	switch {
	case errors.Is(err, service.ErrAuthentication):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, security.ErrEmptyRefreshToken):
		return status.Error(codes.InvalidArgument, "refresh_token is required")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func authResultToProto(res *service.AuthResult) *authv1.AuthResponse {
	return &authv1.AuthResponse{
		AccessToken:      res.AccessToken,
		TokenType:        tokenTypeBearer,
		ExpiresAt:        res.ExpiresAt,
		ExpiresIn:        int64(res.ExpiresIn.Seconds()),
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		SessionID:        res.SessionID,
		UserID:           res.UserID,
	}
}

func sessionToProto(s *sessiondomain.Session) *authv1.Session {
	return &authv1.Session{
		ID:        s.ID,
		Device:    s.Device,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
