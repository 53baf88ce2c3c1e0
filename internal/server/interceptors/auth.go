package interceptors

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"refresh-session-service/internal/denylist"
	"refresh-session-service/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator validates access JWTs. *security.TokenProvider implements it.
type AccessValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token from gRPC
// metadata and sets user_id and the token jti in context for protected RPCs. A token whose jti is
// on the denylist is rejected. If the denylist cannot be reached the call fails closed.
// publicMethods is the set of full method names that do not require a Bearer token
// (e.g. AuthService Login, Refresh, Logout; the gRPC health check).
func AuthUnary(tokens AccessValidator, deny denylist.Denylist, publicMethods map[string]bool, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	if deny == nil {
		deny = denylist.Noop{}
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		claims, err := tokens.ValidateAccess(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		denied, err := deny.Contains(ctx, claims.ID)
		if err != nil {
			logger.Error().Err(err).Str("method", info.FullMethod).Msg("denylist lookup failed")
			return nil, status.Error(codes.Unavailable, "authorization check unavailable")
		}
		if denied {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		return handler(WithIdentity(ctx, claims.Subject, claims.ID), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	v := firstValue(md, "authorization")
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
