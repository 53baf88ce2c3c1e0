package identity

import (
	"context"
	"errors"
	"slices"
	"testing"

	identityrepo "refresh-session-service/internal/identity/repository"
	"refresh-session-service/internal/security"
	userdomain "refresh-session-service/internal/user/domain"
	userrepo "refresh-session-service/internal/user/repository"
)

const testPassword = "Correct-Horse-42"

func newTestDirectory(t *testing.T) (*Directory, *userrepo.MemoryRepository) {
	t.Helper()
	users := userrepo.NewMemoryRepository()
	return NewDirectory(users, identityrepo.NewMemoryRepository(), security.NewHasher(4)), users
}

func TestDirectory_RegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	u, err := dir.Register(ctx, "  Ada@Example.com ", "Ada", testPassword, []string{"user", "admin", ""})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "ada@example.com" || !u.IsActive() {
		t.Errorf("user = %+v", u)
	}

	found, err := dir.FindUserByEmail(ctx, "ADA@example.com")
	if err != nil || found == nil || found.ID != u.ID {
		t.Fatalf("FindUserByEmail = %+v, %v", found, err)
	}
	ok, err := dir.VerifyPassword(ctx, found, testPassword)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(correct) = %v, %v", ok, err)
	}
	ok, err = dir.VerifyPassword(ctx, found, "wrong")
	if err != nil || ok {
		t.Errorf("VerifyPassword(wrong) = %v, %v", ok, err)
	}
	roles, err := dir.RolesOf(ctx, found)
	if err != nil || !slices.Equal(roles, []string{"admin", "user"}) {
		t.Errorf("RolesOf = %v, %v", roles, err)
	}
}

func TestDirectory_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)
	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", testPassword},
		{"bad email", "not-an-email", testPassword},
		{"short password", "a@example.com", "Short-1"},
		{"no upper", "a@example.com", "correct-horse-42"},
		{"no symbol", "a@example.com", "CorrectHorse42x"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := dir.Register(ctx, tc.email, "", tc.password, nil); err == nil {
				t.Error("want validation error")
			}
		})
	}
	if _, err := dir.Register(ctx, "a@example.com", "", testPassword, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := dir.Register(ctx, "A@example.com", "", testPassword, nil); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("duplicate Register err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestDirectory_VerifyPasswordWithoutIdentity(t *testing.T) {
	ctx := context.Background()
	dir, users := newTestDirectory(t)
	u := &userdomain.User{ID: "u1", Email: "sso@example.com", Status: userdomain.UserStatusActive}
	_ = users.Create(ctx, u)

	ok, err := dir.VerifyPassword(ctx, u, testPassword)
	if err != nil || ok {
		t.Errorf("VerifyPassword without identity = %v, %v; want false, nil", ok, err)
	}
}

func TestDirectory_VerifyPasswordNilUserHashes(t *testing.T) {
	dir, _ := newTestDirectory(t)

	ok, err := dir.VerifyPassword(context.Background(), nil, testPassword)
	if err != nil || ok {
		t.Errorf("VerifyPassword(nil user) = %v, %v; want false, nil", ok, err)
	}
	if dir.dummyHash == "" {
		t.Error("nil user should be compared against the dummy hash")
	}
}

func TestDirectory_EnsureUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir, _ := newTestDirectory(t)

	first, created, err := dir.EnsureUser(ctx, "dev@example.com", "Dev", testPassword, []string{"user"})
	if err != nil || !created {
		t.Fatalf("EnsureUser first = %v, %v", created, err)
	}
	second, created, err := dir.EnsureUser(ctx, "dev@example.com", "Dev", testPassword, []string{"admin"})
	if err != nil || created {
		t.Fatalf("EnsureUser second = %v, %v", created, err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}
	roles, _ := dir.RolesOf(ctx, second)
	if !slices.Equal(roles, []string{"admin", "user"}) {
		t.Errorf("roles = %v", roles)
	}
}

func TestDirectory_FindUserByEmailBlank(t *testing.T) {
	dir, _ := newTestDirectory(t)
	u, err := dir.FindUserByEmail(context.Background(), "   ")
	if err != nil || u != nil {
		t.Errorf("FindUserByEmail(blank) = %+v, %v", u, err)
	}
}
