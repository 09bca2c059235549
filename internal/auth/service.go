package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/barangayhub/portal/internal/role"
)

// ErrInvalidCredentials is returned when an email/password pair does not match.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// ErrSessionRevoked is returned when a token's session is no longer active.
var ErrSessionRevoked = errors.New("session revoked or expired")

// ErrInvalidInput is returned when sign-up fields are missing or malformed.
var ErrInvalidInput = errors.New("invalid input")

// ErrForbidden is returned when the caller may not perform the operation.
var ErrForbidden = errors.New("forbidden")

// Service provides authentication operations and publishes session events.
type Service struct {
	repos      Repositories
	tokens     *TokenIssuer
	broker     *Broker
	bcryptCost int
	tokenTTL   time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenTTL sets the access token and session lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// NewService creates a new auth Service.
func NewService(repos Repositories, secret string, broker *Broker, opts ...ServiceOption) *Service {
	s := &Service{
		repos:      repos,
		broker:     broker,
		bcryptCost: bcrypt.DefaultCost,
		tokenTTL:   time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = NewTokenIssuer(secret, s.now)
	return s
}

// Broker returns the event broker the service publishes to.
func (s *Service) Broker() *Broker { return s.broker }

// SignUp registers a resident account and its profile.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") || len(in.Password) < 8 {
		return nil, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         role.Resident,
	}
	p := &Profile{
		FullName: u.DisplayName,
		Role:     u.Role,
		Barangay: strings.TrimSpace(in.Barangay),
	}
	if err := s.repos.Users.CreateWithProfile(ctx, u, p); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	slog.Info("user registered", "user", u.ID)
	return u, nil
}

// SignIn verifies credentials, opens a session and returns its access token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Grant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	sess := &Session{
		UserID:    u.ID,
		ExpiresAt: s.now().UTC().Add(s.tokenTTL),
	}
	if err := s.repos.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	grant, err := s.grant(u, sess.ID, sess.ExpiresAt)
	if err != nil {
		return nil, err
	}

	s.publish(EventSignedIn, u.ID, sess.ID)
	return grant, nil
}

// SignOut revokes the session. Signing out an already revoked session is a no-op.
func (s *Service) SignOut(ctx context.Context, identity *Identity) error {
	revoked, err := s.repos.Sessions.Revoke(ctx, identity.SessionID)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	if revoked {
		s.publish(EventSignedOut, identity.UserID, identity.SessionID)
	}
	return nil
}

// Refresh extends the caller's session and issues a new access token.
func (s *Service) Refresh(ctx context.Context, identity *Identity) (*Grant, error) {
	u, err := s.repos.Users.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}

	expiresAt := s.now().UTC().Add(s.tokenTTL)
	if err := s.repos.Sessions.Extend(ctx, identity.SessionID, expiresAt); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("extending session: %w", err)
	}

	grant, err := s.grant(u, identity.SessionID, expiresAt)
	if err != nil {
		return nil, err
	}

	s.publish(EventTokenRefreshed, u.ID, identity.SessionID)
	return grant, nil
}

// Authenticate resolves a bearer token to an Identity. The token must verify
// and its session must still be active.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*Identity, error) {
	claims, err := s.tokens.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	userID, sessionID, err := claims.ids()
	if err != nil {
		return nil, err
	}

	sess, err := s.repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	if sess.UserID != userID || !sess.Active(s.now()) {
		return nil, ErrSessionRevoked
	}

	u, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	return &Identity{
		UserID:      u.ID,
		SessionID:   sessionID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}, nil
}

// Profile returns the profile for userID.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repos.Profiles.GetByID(ctx, userID)
}

// AssignRole changes a user's role. Only admins may assign roles and only a
// superadmin may grant superadmin.
func (s *Service) AssignRole(ctx context.Context, actor *Identity, userID uuid.UUID, newRole role.Role) error {
	if !newRole.Valid() {
		return ErrInvalidInput
	}
	actorRole := actor.Role
	if !role.Derive(&actorRole).Admin {
		return ErrForbidden
	}
	if newRole == role.SuperAdmin && actor.Role != role.SuperAdmin {
		return ErrForbidden
	}

	if err := s.repos.Roles.AssignRole(ctx, userID, newRole); err != nil {
		return err
	}

	slog.Info("role assigned", "user", userID, "role", newRole, "actor", actor.UserID)
	s.publish(EventUserUpdated, userID, uuid.Nil)
	return nil
}

// ExpireSessions revokes sessions past their expiry and announces each one.
func (s *Service) ExpireSessions(ctx context.Context) (int, error) {
	expired, err := s.repos.Sessions.RevokeExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, sess := range expired {
		s.publish(EventSignedOut, sess.UserID, sess.ID)
	}
	return len(expired), nil
}

func (s *Service) grant(u *User, sessionID uuid.UUID, expiresAt time.Time) (*Grant, error) {
	token, err := s.tokens.Issue(u, sessionID, expiresAt)
	if err != nil {
		return nil, err
	}
	return &Grant{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        u,
		SessionID:   sessionID,
	}, nil
}

func (s *Service) publish(kind EventKind, userID, sessionID uuid.UUID) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(Event{
		Kind:      kind,
		UserID:    userID,
		SessionID: sessionID,
		At:        s.now().UTC(),
	})
}
