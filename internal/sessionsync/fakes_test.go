package sessionsync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/barangayhub/portal/internal/role"
	"github.com/barangayhub/portal/internal/sessionsync"
)

type userReply struct {
	session *sessionsync.Session
	err     error
}

// userCall is one blocked CurrentUser invocation waiting for the test to reply.
type userCall struct {
	reply chan userReply
}

func (c userCall) respond(s *sessionsync.Session, err error) {
	c.reply <- userReply{session: s, err: err}
}

// --- Mock Collaborator ---

type mockCollaborator struct {
	// When calls is non-nil, CurrentUser hands each invocation to the test.
	calls  chan userCall
	userFn func(ctx context.Context) (*sessionsync.Session, error)

	events chan sessionsync.Event
	subErr error
	subFn  func(ctx context.Context) (<-chan sessionsync.Event, error)

	mu       sync.Mutex
	signIns  []string
	signUps  []sessionsync.SignUpRequest
	signOuts int
	forward  error
}

func newMockCollaborator() *mockCollaborator {
	return &mockCollaborator{events: make(chan sessionsync.Event)}
}

func (m *mockCollaborator) CurrentUser(ctx context.Context) (*sessionsync.Session, error) {
	if m.calls == nil {
		if m.userFn != nil {
			return m.userFn(ctx)
		}
		return nil, sessionsync.ErrNoSession
	}

	call := userCall{reply: make(chan userReply, 1)}
	select {
	case m.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-call.reply:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockCollaborator) OnAuthStateChange(ctx context.Context) (<-chan sessionsync.Event, error) {
	if m.subFn != nil {
		return m.subFn(ctx)
	}
	if m.subErr != nil {
		return nil, m.subErr
	}
	out := make(chan sessionsync.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-m.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *mockCollaborator) SignIn(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signIns = append(m.signIns, email)
	return m.forward
}

func (m *mockCollaborator) SignUp(_ context.Context, req sessionsync.SignUpRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signUps = append(m.signUps, req)
	return m.forward
}

func (m *mockCollaborator) SignOut(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOuts++
	return m.forward
}

// emit delivers ev to the synchronizer's subscription.
func (m *mockCollaborator) emit(t *testing.T, ev sessionsync.Event) {
	t.Helper()
	select {
	case m.events <- ev:
	case <-time.After(2 * time.Second):
		t.Fatalf("event %s was not consumed", ev.Kind)
	}
}

func (m *mockCollaborator) nextCall(t *testing.T) userCall {
	t.Helper()
	select {
	case c := <-m.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a CurrentUser call")
		return userCall{}
	}
}

// --- Mock ProfileStore ---

type mockProfiles struct {
	mu       sync.Mutex
	profiles map[string]*sessionsync.Profile
	err      error
	fetchFn  func(ctx context.Context, id string) (*sessionsync.Profile, error)
	fetched  []string
}

func newMockProfiles(ps ...sessionsync.Profile) *mockProfiles {
	m := &mockProfiles{profiles: make(map[string]*sessionsync.Profile)}
	for i := range ps {
		p := ps[i]
		m.profiles[p.ID] = &p
	}
	return m
}

func (m *mockProfiles) Profile(ctx context.Context, id string) (*sessionsync.Profile, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, id)
	fn, err := m.fetchFn, m.err
	p := m.profiles[id]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	c := *p
	return &c, nil
}

// --- Mock Cache ---

type mockCache struct {
	mu      sync.Mutex
	session *sessionsync.Session
	profile *sessionsync.Profile
	stores  int
	clears  int
}

func (m *mockCache) Load() (*sessionsync.Session, *sessionsync.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil, false
	}
	s := *m.session
	return &s, m.profile, true
}

func (m *mockCache) Store(s sessionsync.Session, p *sessionsync.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	m.profile = p
	m.stores++
	return nil
}

func (m *mockCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.profile = nil
	m.clears++
	return nil
}

func (m *mockCache) counts() (stores, clears int, present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores, m.clears, m.session != nil
}

// --- helpers ---

func session(id string, r role.Role) *sessionsync.Session {
	return &sessionsync.Session{ID: id, Email: id + "@brgy.example.ph", Role: r}
}

func profile(id string, r role.Role) sessionsync.Profile {
	return sessionsync.Profile{ID: id, FullName: "Juan " + id, Role: r, Barangay: "San Isidro"}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func discardedCount(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "sessionsync_discarded_results_total" {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
