// Package authv1 defines the AuthService gRPC API: request and response messages, the service
// descriptor, and a client. Messages travel as JSON using the codec registered by this package.
package authv1

import "time"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// DeviceName labels the session; falls back to the x-device-name header.
	DeviceName string `json:"device_name,omitempty"`
}

// AuthResponse is returned by Login and Refresh.
type AuthResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutResponse struct{}

type LogoutAllRequest struct{}

type LogoutAllResponse struct {
	RevokedCount int32 `json:"revoked_count"`
}

type ListSessionsRequest struct{}

type ListSessionsResponse struct {
	Sessions []*Session `json:"sessions"`
}

// Session describes an active refresh session. Token material is never exposed.
type Session struct {
	ID        string    `json:"id"`
	Device    string    `json:"device,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
