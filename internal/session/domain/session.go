package domain

import "time"

// State is the lifecycle state of a refresh session at a given instant.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateRevoked State = "revoked"
)

// DeviceMetadata is the client context captured at login and carried unchanged through rotations.
type DeviceMetadata struct {
	Device    string
	IPAddress string
	UserAgent string
}

// Column widths of the stored device metadata, in characters.
const (
	MaxDeviceLen    = 200
	MaxIPAddressLen = 50
	MaxUserAgentLen = 500
)

// Clamped returns m with every field cut to its column width. Client-supplied values longer than
// that are shortened rather than rejected.
func (m DeviceMetadata) Clamped() DeviceMetadata {
	return DeviceMetadata{
		Device:    truncate(m.Device, MaxDeviceLen),
		IPAddress: truncate(m.IPAddress, MaxIPAddressLen),
		UserAgent: truncate(m.UserAgent, MaxUserAgentLen),
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Session is a refresh-token record. Only the fingerprint of the refresh token is stored.
// RevokedAt is set at most once; ReplacedBy is set only together with RevokedAt, when the session
// was consumed by a rotation, and then names the successor created in the same transaction.
type Session struct {
	ID            string
	UserID        string
	Fingerprint   string
	AccessTokenID string // jti of the access token issued alongside; traceability only
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time // nil when not revoked
	ReplacedBy    string     // successor session id; empty when none
	DeviceMetadata
}

// IsRevoked reports whether the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsUsable reports whether the session can be exchanged at now: not revoked and not expired.
func (s *Session) IsUsable(now time.Time) bool {
	return !s.IsRevoked() && now.Before(s.ExpiresAt)
}

// StateAt returns the session state at now. Revocation wins over expiry.
func (s *Session) StateAt(now time.Time) State {
	switch {
	case s.IsRevoked():
		return StateRevoked
	case !now.Before(s.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// WasRotated reports whether the session was consumed by a rotation.
func (s *Session) WasRotated() bool {
	return s.IsRevoked() && s.ReplacedBy != ""
}
