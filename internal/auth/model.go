package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/barangayhub/portal/internal/role"
)

// User represents a row in the users table.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	DisplayName  string
	Role         role.Role
	CreatedAt    time.Time
}

// Profile represents a row in the profiles table. Its ID is the owning user's ID.
type Profile struct {
	ID            uuid.UUID
	FullName      string
	Role          role.Role
	Barangay      string
	ContactNumber string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session represents a row in the sessions table.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Identity is stored in the request context after authentication.
type Identity struct {
	UserID      uuid.UUID
	SessionID   uuid.UUID
	Email       string
	DisplayName string
	Role        role.Role
}

// Grant is the result of a successful sign-in or refresh.
type Grant struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *User
	SessionID   uuid.UUID
}

// SignUpInput carries the fields accepted on sign-up.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
	Barangay    string
}
