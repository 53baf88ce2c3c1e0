package repository

import (
	"context"
	"errors"

	"refresh-session-service/internal/user/domain"
)

// ErrDuplicateEmail is returned when a user is created with an email that is already taken.
var ErrDuplicateEmail = errors.New("user email already exists")

// Repository defines persistence for users and their role assignments.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// ListRoleNames returns the names of the roles assigned to the user, sorted.
	ListRoleNames(ctx context.Context, userID string) ([]string, error)
	// AssignRole grants role to the user, creating the role if needed. Granting twice is a no-op.
	AssignRole(ctx context.Context, userID, role string) error
}
