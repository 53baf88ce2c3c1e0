package server

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	authv1 "refresh-session-service/api/auth/v1"
	"refresh-session-service/internal/denylist"
	identityhandler "refresh-session-service/internal/identity/handler"
	identityservice "refresh-session-service/internal/identity/service"
	"refresh-session-service/internal/server/interceptors"
)

// publicMethods do not require a Bearer access token. Refresh and Logout authenticate with the
// refresh token in the request body.
var publicMethods = map[string]bool{
	authv1.AuthService_Login_FullMethodName:   true,
	authv1.AuthService_Refresh_FullMethodName: true,
	authv1.AuthService_Logout_FullMethodName:  true,
	healthpb.Health_Check_FullMethodName:      true,
	healthpb.Health_Watch_FullMethodName:      true,
	healthpb.Health_List_FullMethodName:       true,
}

// quietMethods are not access-logged.
var quietMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// Deps holds the service dependencies for the gRPC server.
type Deps struct {
	// Auth is the refresh session lifecycle. If nil, AuthService RPCs return Unimplemented.
	Auth *identityservice.AuthService
	// Tokens validates Bearer access tokens on protected RPCs.
	Tokens interceptors.AccessValidator
	// Denylist rejects revoked access tokens. Defaults to denylist.Noop.
	Denylist denylist.Denylist
	// Health is the grpc.health.v1 server. If nil, the health service is not registered.
	Health *health.Server
	Logger zerolog.Logger
}

// NewServer returns a gRPC server with interceptors, OpenTelemetry instrumentation, and every
// service registered. Extra options are appended.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.MetadataUnary(),
			interceptors.LoggingUnary(deps.Logger, quietMethods),
			interceptors.AuthUnary(deps.Tokens, deps.Denylist, publicMethods, deps.Logger),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - auth.v1.AuthService  → internal/identity/handler
//   - grpc.health.v1.Health → google.golang.org/grpc/health (status kept by internal/health/handler)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	authv1.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth))
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
