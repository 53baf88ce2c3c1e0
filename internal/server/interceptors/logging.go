package interceptors

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that writes one access log line per RPC.
// Calls in skipMethods (e.g. the health check) are not logged. Server-side failures log at
// error level, client errors at warn.
func LoggingUnary(logger zerolog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		meta := GetRequestMetadata(ctx)
		var ev *zerolog.Event
		switch code {
		case codes.OK:
			ev = logger.Info()
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
			ev = logger.Error().Err(err)
		default:
			ev = logger.Warn()
		}
		ev = ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Str("client_ip", meta.ClientIP)
		if meta.CorrelationID != "" {
			ev = ev.Str("correlation_id", meta.CorrelationID)
		}
		ev.Msg("grpc request")
		return resp, err
	}
}
