package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
	"time"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// KeyMaterial describes where access tokens get their signing keys from. Either Secret (HS256)
// or the PrivateKey/PublicKey pair (RS256/ES256) must be set; the pair wins when both are present.
type KeyMaterial struct {
	Secret     string
	PrivateKey string // inline PEM or file path
	PublicKey  string // inline PEM or file path
}

// NewTokenProviderFromKeys builds a TokenProvider from km. Returns ErrSigningKeyMissing when km
// carries no usable key material.
func NewTokenProviderFromKeys(km KeyMaterial, issuer, audience string, accessTTL time.Duration) (*TokenProvider, error) {
	if strings.TrimSpace(km.PrivateKey) != "" {
		signer, err := ParsePrivateKey(km.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub := signer.Public()
		if strings.TrimSpace(km.PublicKey) != "" {
			if pub, err = ParsePublicKey(km.PublicKey); err != nil {
				return nil, err
			}
		}
		if KeyAlg(pub) == "" {
			return nil, ErrInvalidKey
		}
		return NewTokenProvider(signer, pub, issuer, audience, accessTTL), nil
	}
	secret := strings.TrimSpace(km.Secret)
	if secret == "" {
		return nil, ErrSigningKeyMissing
	}
	return NewHMACTokenProvider([]byte(secret), issuer, audience, accessTTL), nil
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

func decodePEM(s string) (*pem.Block, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	default:
		return ""
	}
}
