package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/barangayhub/portal/internal/role"
)

// ErrUserNotFound is returned when a user record is not found.
var ErrUserNotFound = errors.New("user not found")

// ErrProfileNotFound is returned when a profile record is not found.
var ErrProfileNotFound = errors.New("profile not found")

// ErrSessionNotFound is returned when a session record is not found.
var ErrSessionNotFound = errors.New("session not found")

// ErrEmailTaken is returned when a user with the same email already exists.
var ErrEmailTaken = errors.New("email already registered")

// UserRepository provides operations on the users table.
type UserRepository interface {
	// CreateWithProfile inserts the user and its profile in one transaction.
	// The profile takes the new user's ID. Neither row exists if either
	// insert fails.
	CreateWithProfile(ctx context.Context, user *User, profile *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// ProfileRepository provides operations on the profiles table.
type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
}

// RoleAssigner updates a user's role on both the user and the profile rows
// in one transaction.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID uuid.UUID, r role.Role) error
}

// SessionRepository provides operations on the sessions table.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Extend(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	// Revoke marks the session revoked. It reports false when the session
	// was already revoked.
	Revoke(ctx context.Context, id uuid.UUID) (bool, error)
	// RevokeExpired revokes every unrevoked session that expired before now
	// and returns the revoked rows.
	RevokeExpired(ctx context.Context, now time.Time) ([]Session, error)
}

// Repositories bundles the stores the auth Service depends on.
type Repositories struct {
	Users    UserRepository
	Profiles ProfileRepository
	Sessions SessionRepository
	Roles    RoleAssigner
}
