package domain

import "time"

// Identity is a credential linked to a user. Only local password identities are supported.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string // login name for local identities; the user's email
	PasswordHash string // bcrypt hash; never the plaintext
	CreatedAt    time.Time
}

type IdentityProvider string

const IdentityProviderLocal IdentityProvider = "local"
