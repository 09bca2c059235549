package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangayhub/portal/internal/role"
)

const uniqueViolation = "23505"

// NewRepositories creates pgx-backed repositories sharing the given pool.
func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:    &PostgresUserRepository{pool: pool},
		Profiles: &PostgresProfileRepository{pool: pool},
		Sessions: &PostgresSessionRepository{pool: pool},
		Roles:    &PostgresRoleAssigner{pool: pool},
	}
}

// PostgresUserRepository implements UserRepository using pgxpool.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// CreateWithProfile inserts a user and its profile in one transaction.
func (r *PostgresUserRepository) CreateWithProfile(ctx context.Context, u *User, p *Profile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning sign-up transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	userQuery := `
		INSERT INTO users (email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err = tx.QueryRow(ctx, userQuery,
		u.Email,
		u.PasswordHash,
		u.DisplayName,
		string(u.Role),
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	profileQuery := `
		INSERT INTO profiles (id, full_name, role, barangay, contact_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	p.ID = u.ID
	err = tx.QueryRow(ctx, profileQuery,
		p.ID,
		p.FullName,
		string(p.Role),
		p.Barangay,
		p.ContactNumber,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing sign-up transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a single user by its UUID.
func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, password_hash, display_name, role, created_at
		FROM users
		WHERE id = $1`

	return r.scanOne(ctx, query, id)
}

// GetByEmail retrieves a single user by email (case-insensitive).
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, display_name, role, created_at
		FROM users
		WHERE lower(email) = lower($1)`

	return r.scanOne(ctx, query, email)
}

func (r *PostgresUserRepository) scanOne(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u       User
		roleStr string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &roleStr, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.Role = role.Role(roleStr)
	return &u, nil
}

// PostgresProfileRepository implements ProfileRepository using pgxpool.
type PostgresProfileRepository struct {
	pool *pgxpool.Pool
}

// GetByID retrieves the profile for a user.
func (r *PostgresProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `
		SELECT id, full_name, role, barangay, contact_number, created_at, updated_at
		FROM profiles
		WHERE id = $1`

	var (
		p       Profile
		roleStr string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.FullName, &roleStr, &p.Barangay, &p.ContactNumber, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	p.Role = role.Role(roleStr)
	return &p, nil
}

// PostgresRoleAssigner implements RoleAssigner using pgxpool.
type PostgresRoleAssigner struct {
	pool *pgxpool.Pool
}

// AssignRole updates users.role and profiles.role together.
func (r *PostgresRoleAssigner) AssignRole(ctx context.Context, userID uuid.UUID, newRole role.Role) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning role transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, "UPDATE users SET role = $2 WHERE id = $1", userID, string(newRole))
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	_, err = tx.Exec(ctx, "UPDATE profiles SET role = $2, updated_at = NOW() WHERE id = $1", userID, string(newRole))
	if err != nil {
		return fmt.Errorf("updating profile role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing role transaction: %w", err)
	}
	return nil
}

// PostgresSessionRepository implements SessionRepository using pgxpool.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new session record.
func (r *PostgresSessionRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (user_id, expires_at)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, s.UserID, s.ExpiresAt).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its UUID.
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, user_id, created_at, expires_at, revoked_at
		FROM sessions
		WHERE id = $1`

	var s Session
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &s, nil
}

// Extend moves the expiry of an unrevoked session.
func (r *PostgresSessionRepository) Extend(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE sessions SET expires_at = $2 WHERE id = $1 AND revoked_at IS NULL", id, expiresAt)
	if err != nil {
		return fmt.Errorf("extending session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Revoke sets revoked_at on a session. Returns ErrSessionNotFound if the
// session does not exist, and false if it was already revoked.
func (r *PostgresSessionRepository) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.pool.Exec(ctx,
		"UPDATE sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return false, fmt.Errorf("revoking session: %w", err)
	}
	if result.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish not-found from already-revoked
	var exists bool
	err = r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking session existence: %w", err)
	}
	if !exists {
		return false, ErrSessionNotFound
	}
	return false, nil
}

// RevokeExpired revokes all sessions that expired before now.
func (r *PostgresSessionRepository) RevokeExpired(ctx context.Context, now time.Time) ([]Session, error) {
	query := `
		UPDATE sessions
		SET revoked_at = $1
		WHERE revoked_at IS NULL AND expires_at <= $1
		RETURNING id, user_id, created_at, expires_at, revoked_at`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("revoking expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}
