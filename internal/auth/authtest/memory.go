// Package authtest provides in-memory auth repositories for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/barangayhub/portal/internal/auth"
	"github.com/barangayhub/portal/internal/role"
)

// Store is an in-memory implementation of every auth repository.
type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]auth.User
	profiles map[uuid.UUID]auth.Profile
	sessions map[uuid.UUID]auth.Session
	now      func() time.Time

	profileErr error
}

// NewStore creates an empty Store. A nil clock uses time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:    make(map[uuid.UUID]auth.User),
		profiles: make(map[uuid.UUID]auth.Profile),
		sessions: make(map[uuid.UUID]auth.Session),
		now:      now,
	}
}

// Repositories exposes the store through the auth repository interfaces.
func (s *Store) Repositories() auth.Repositories {
	return auth.Repositories{
		Users:    users{s},
		Profiles: profiles{s},
		Sessions: sessions{s},
		Roles:    roles{s},
	}
}

// Session returns a copy of the stored session.
func (s *Store) Session(id uuid.UUID) (auth.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// FailNextProfile makes the next account creation fail with err at the
// profile insert. The user insert is rolled back with it.
func (s *Store) FailNextProfile(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileErr = err
}

// DeleteProfile removes a profile, simulating a missing row.
func (s *Store) DeleteProfile(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
}

type users struct{ s *Store }

func (r users) CreateWithProfile(_ context.Context, u *auth.User, p *auth.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrEmailTaken
		}
	}
	if err := r.s.profileErr; err != nil {
		r.s.profileErr = nil
		return err
	}

	now := r.s.now().UTC()
	u.ID = uuid.New()
	u.CreatedAt = now
	p.ID = u.ID
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.users[u.ID] = *u
	r.s.profiles[p.ID] = *p
	return nil
}

func (r users) GetByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

func (r users) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

type profiles struct{ s *Store }

func (r profiles) GetByID(_ context.Context, id uuid.UUID) (*auth.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, auth.ErrProfileNotFound
	}
	return &p, nil
}

type roles struct{ s *Store }

func (r roles) AssignRole(_ context.Context, userID uuid.UUID, newRole role.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Role = newRole
	r.s.users[userID] = u
	if p, ok := r.s.profiles[userID]; ok {
		p.Role = newRole
		p.UpdatedAt = r.s.now().UTC()
		r.s.profiles[userID] = p
	}
	return nil
}

type sessions struct{ s *Store }

func (r sessions) Create(_ context.Context, sess *auth.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess.ID = uuid.New()
	sess.CreatedAt = r.s.now().UTC()
	r.s.sessions[sess.ID] = *sess
	return nil
}

func (r sessions) GetByID(_ context.Context, id uuid.UUID) (*auth.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return &sess, nil
}

func (r sessions) Extend(_ context.Context, id uuid.UUID, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return auth.ErrSessionNotFound
	}
	sess.ExpiresAt = expiresAt
	r.s.sessions[id] = sess
	return nil
}

func (r sessions) Revoke(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return false, auth.ErrSessionNotFound
	}
	if sess.RevokedAt != nil {
		return false, nil
	}
	now := r.s.now().UTC()
	sess.RevokedAt = &now
	r.s.sessions[id] = sess
	return true, nil
}

func (r sessions) RevokeExpired(_ context.Context, now time.Time) ([]auth.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []auth.Session{}
	for id, sess := range r.s.sessions {
		if sess.RevokedAt == nil && !now.Before(sess.ExpiresAt) {
			at := now
			sess.RevokedAt = &at
			r.s.sessions[id] = sess
			out = append(out, sess)
		}
	}
	return out, nil
}
