package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// refreshTokenBytes is the amount of randomness in a refresh token (512 bits).
const refreshTokenBytes = 64

// ErrEmptyRefreshToken is returned when an empty refresh token is hashed.
var ErrEmptyRefreshToken = errors.New("refresh token is empty")

// GenerateRefreshToken returns a new opaque refresh token: 64 bytes from crypto/rand,
// base64url-encoded without padding. The plaintext must only ever be handed to the client.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken returns the SHA-256 fingerprint of the refresh token, hex-encoded.
// The fingerprint is what gets stored and looked up; the raw token never is.
func HashRefreshToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyRefreshToken
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:]), nil
}

// RefreshTokenHashEqual performs constant-time comparison of the provided token's hash
// with the stored hash. Returns true only if they match.
func RefreshTokenHashEqual(providedToken, storedHash string) bool {
	providedHash, err := HashRefreshToken(providedToken)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
