package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// Metadata keys read from incoming calls.
const (
	mdForwardedFor  = "x-forwarded-for"
	mdRealIP        = "x-real-ip"
	mdUserAgent     = "user-agent"
	mdDeviceName    = "x-device-name"
	mdCorrelationID = "x-correlation-id"
	mdRequestID     = "x-request-id"
)

// RequestMetadata is the client context of one call: where it came from and how to correlate it.
type RequestMetadata struct {
	ClientIP      string
	UserAgent     string
	DeviceName    string
	CorrelationID string
}

// MetadataUnary returns a unary server interceptor that captures RequestMetadata once per call
// and stores it in the context.
func MetadataUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(WithRequestMetadata(ctx, ExtractRequestMetadata(ctx)), req)
	}
}

// ExtractRequestMetadata reads RequestMetadata from incoming gRPC metadata and the peer address.
// The correlation id comes from x-correlation-id, falling back to x-request-id.
func ExtractRequestMetadata(ctx context.Context) RequestMetadata {
	md, _ := metadata.FromIncomingContext(ctx)
	correlationID := firstValue(md, mdCorrelationID)
	if correlationID == "" {
		correlationID = firstValue(md, mdRequestID)
	}
	return RequestMetadata{
		ClientIP:      ClientIP(ctx),
		UserAgent:     firstValue(md, mdUserAgent),
		DeviceName:    firstValue(md, mdDeviceName),
		CorrelationID: correlationID,
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if s := firstValue(md, mdForwardedFor); s != "" {
			if i := strings.Index(s, ","); i > 0 {
				s = strings.TrimSpace(s[:i])
			}
			return s
		}
		if s := firstValue(md, mdRealIP); s != "" {
			return s
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

func firstValue(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
