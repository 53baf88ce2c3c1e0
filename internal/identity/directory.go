// Package identity is the local identity store: users, their password identities and roles.
// The session lifecycle consumes it only through FindUserByEmail, GetUserByID, VerifyPassword and RolesOf.
package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"refresh-session-service/internal/identity/domain"
	identityrepo "refresh-session-service/internal/identity/repository"
	"refresh-session-service/internal/security"
	userdomain "refresh-session-service/internal/user/domain"
	userrepo "refresh-session-service/internal/user/repository"
)

// ErrEmailAlreadyRegistered is returned by Register when the email is taken.
var ErrEmailAlreadyRegistered = errors.New("email already registered")

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Directory implements the identity store over the user and identity repositories.
type Directory struct {
	users      userrepo.Repository
	identities identityrepo.Repository
	hasher     *security.Hasher

	// dummyHash is compared against when a user has no local identity, so a missing identity
	// costs the same bcrypt work as a wrong password.
	dummyOnce sync.Once
	dummyHash string
}

// NewDirectory returns a Directory.
func NewDirectory(users userrepo.Repository, identities identityrepo.Repository, hasher *security.Hasher) *Directory {
	return &Directory{users: users, identities: identities, hasher: hasher}
}

// FindUserByEmail returns the user with email, or nil if none. Email is matched case-insensitively.
func (d *Directory) FindUserByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return d.users.GetByEmail(ctx, email)
}

// GetUserByID returns the user for id, or nil if none.
func (d *Directory) GetUserByID(ctx context.Context, id string) (*userdomain.User, error) {
	return d.users.GetByID(ctx, id)
}

// VerifyPassword reports whether password matches the user's local identity. A nil user, or one
// without a local identity, is compared against a dummy hash and reports false.
func (d *Directory) VerifyPassword(ctx context.Context, user *userdomain.User, password string) (bool, error) {
	if user == nil {
		d.burnPasswordCheck(password)
		return false, nil
	}
	ident, err := d.identities.GetByUserAndProvider(ctx, user.ID, domain.IdentityProviderLocal)
	if err != nil {
		return false, err
	}
	if ident == nil || ident.PasswordHash == "" {
		d.burnPasswordCheck(password)
		return false, nil
	}
	return d.hasher.Verify(ident.PasswordHash, []byte(password))
}

func (d *Directory) burnPasswordCheck(password string) {
	d.dummyOnce.Do(func() {
		d.dummyHash, _ = d.hasher.Hash([]byte(uuid.NewString()))
	})
	_, _ = d.hasher.Verify(d.dummyHash, []byte(password))
}

// RolesOf returns the user's role names.
func (d *Directory) RolesOf(ctx context.Context, user *userdomain.User) ([]string, error) {
	return d.users.ListRoleNames(ctx, user.ID)
}

// Register creates an active user with a local password identity and the given roles.
func (d *Directory) Register(ctx context.Context, email, name, password string, roles []string) (*userdomain.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := d.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	hashed, err := d.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	if err := d.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	ident := &domain.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Provider:     domain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
	}
	if err := d.identities.Create(ctx, ident); err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role = strings.TrimSpace(role); role == "" {
			continue
		}
		if err := d.users.AssignRole(ctx, user.ID, role); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// EnsureUser registers the user unless the email already exists, in which case the existing user
// is returned and only missing roles are granted.
func (d *Directory) EnsureUser(ctx context.Context, email, name, password string, roles []string) (*userdomain.User, bool, error) {
	existing, err := d.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		u, err := d.Register(ctx, email, name, password, roles)
		return u, err == nil, err
	}
	for _, role := range roles {
		if role = strings.TrimSpace(role); role == "" {
			continue
		}
		if err := d.users.AssignRole(ctx, existing.ID, role); err != nil {
			return nil, false, err
		}
	}
	return existing, false, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !simpleEmail.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
