package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSigningKeyMissing is returned when neither a signing secret nor a private key is configured.
	// It is a configuration error: callers should fail at startup instead of retrying.
	ErrSigningKeyMissing = errors.New("signing key is not configured")
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UniqueName string   `json:"unique_name"`
	Roles      []string `json:"roles,omitempty"`
}

// TokenProvider issues and validates short-lived access JWTs. It signs with HS256 when built from
// a shared secret, or with RS256/ES256 when built from a private/public key pair.
// A TokenProvider is stateless after construction and safe for concurrent use.
type TokenProvider struct {
	secret     []byte
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on ValidateAccess.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		now:        time.Now,
	}
}

// NewHMACTokenProvider returns a TokenProvider that signs with HS256 using secret.
// An empty secret is accepted here; IssueAccess then fails with ErrSigningKeyMissing.
func NewHMACTokenProvider(secret []byte, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		secret:    secret,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// WithClock returns a copy of p that reads the current time from now.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	c := *p
	c.now = now
	return &c
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

// IssueAccess issues a short-lived access JWT for the given user. roles is treated as an unordered
// set: duplicates and blanks are dropped and the claim is sorted.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(userID, displayName string, roles []string) (token string, jti string, expiresAt time.Time, err error) {
	method, key, err := p.signingMethod()
	if err != nil {
		return "", "", time.Time{}, err
	}
	jti = uuid.New().String()
	now := p.now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UniqueName: displayName,
		Roles:      normalizeRoles(roles),
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

func (p *TokenProvider) signingMethod() (jwt.SigningMethod, any, error) {
	if p.privateKey != nil {
		switch p.privateKey.Public().(type) {
		case *rsa.PublicKey:
			return jwt.SigningMethodRS256, p.privateKey, nil
		case *ecdsa.PublicKey:
			return jwt.SigningMethodES256, p.privateKey, nil
		default:
			return nil, nil, ErrInvalidKey
		}
	}
	if len(p.secret) == 0 {
		return nil, nil, ErrSigningKeyMissing
	}
	return jwt.SigningMethodHS256, p.secret, nil
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
// Any failure is reported as ErrInvalidToken.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc,
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(p.secret) == 0 || p.privateKey != nil {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		if p.publicKey == nil {
			return nil, ErrInvalidToken
		}
		return p.publicKey, nil
	default:
		return nil, ErrInvalidToken
	}
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
