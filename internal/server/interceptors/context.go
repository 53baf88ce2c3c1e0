package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey        = contextKey{"user_id"}
	accessTokenIDKey = contextKey{"access_token_id"}
	requestMetaKey   = contextKey{"request_metadata"}
)

// WithIdentity returns a context with the authenticated user_id and the jti of the access token
// that authenticated the call. Handlers read these via GetUserID and GetAccessTokenID.
func WithIdentity(ctx context.Context, userID, accessTokenID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, accessTokenIDKey, accessTokenID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetAccessTokenID returns the access token jti from context and true if set; otherwise "", false.
func GetAccessTokenID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accessTokenIDKey).(string)
	return v, ok
}

// WithRequestMetadata returns a context carrying md.
func WithRequestMetadata(ctx context.Context, md RequestMetadata) context.Context {
	return context.WithValue(ctx, requestMetaKey, md)
}

// GetRequestMetadata returns the request metadata captured by MetadataUnary. When the interceptor
// did not run it is derived from ctx directly.
func GetRequestMetadata(ctx context.Context) RequestMetadata {
	if md, ok := ctx.Value(requestMetaKey).(RequestMetadata); ok {
		return md
	}
	return ExtractRequestMetadata(ctx)
}
