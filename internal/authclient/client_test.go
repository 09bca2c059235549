package authclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/barangayhub/portal/internal/api"
	"github.com/barangayhub/portal/internal/auth"
	"github.com/barangayhub/portal/internal/auth/authtest"
	"github.com/barangayhub/portal/internal/authclient"
	"github.com/barangayhub/portal/internal/role"
	"github.com/barangayhub/portal/internal/sessionsync"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testEmail    = "lola@brgy.example.ph"
	testPassword = "sampaguita-2026"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type portal struct {
	url   string
	svc   *auth.Service
	store *authtest.Store
	clock *clock
}

// startPortal serves a portal backed by an in-memory store. wrap, when
// given, sits in front of the router.
func startPortal(t *testing.T, wrap ...func(http.Handler) http.Handler) *portal {
	t.Helper()
	clk := &clock{now: time.Now().UTC()}
	store := authtest.NewStore(clk.Now)
	svc := auth.NewService(store.Repositories(), "client-test-secret", auth.NewBroker(),
		auth.WithClock(clk.Now),
		auth.WithBcryptCost(bcrypt.MinCost),
	)

	var h http.Handler = api.NewRouter(api.RouterDeps{
		Version:        "test",
		AuthService:    svc,
		SignInRate:     1000,
		SignInBurst:    1000,
		EventKeepAlive: 20 * time.Millisecond,
	})
	for _, w := range wrap {
		h = w(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &portal{url: srv.URL, svc: svc, store: store, clock: clk}
}

// register creates an account directly through the service.
func (p *portal) register(t *testing.T, email string, r role.Role) *auth.User {
	t.Helper()
	ctx := context.Background()
	u, err := p.svc.SignUp(ctx, auth.SignUpInput{Email: email, Password: testPassword, DisplayName: "Lola Basyang"})
	require.NoError(t, err)
	if r != role.Resident {
		require.NoError(t, p.store.Repositories().Roles.AssignRole(ctx, u.ID, r))
	}
	return u
}

func newClient(t *testing.T, p *portal, opts ...authclient.Option) *authclient.Client {
	t.Helper()
	tr := &http.Transport{}
	opts = append([]authclient.Option{
		authclient.WithHTTPClient(&http.Client{Transport: tr}),
		authclient.WithRetryDelay(10 * time.Millisecond),
		authclient.WithRefreshMargin(0),
	}, opts...)
	c := authclient.New(p.url, opts...)
	t.Cleanup(func() {
		c.Close()
		tr.CloseIdleConnections()
	})
	return c
}

func subscribe(t *testing.T, c *authclient.Client) <-chan sessionsync.Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := c.OnAuthStateChange(ctx)
	require.NoError(t, err)
	return ch
}

func nextEvent(t *testing.T, ch <-chan sessionsync.Event) sessionsync.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event")
		return sessionsync.Event{}
	}
}

func TestCurrentUser_NoToken(t *testing.T) {
	p := startPortal(t)
	c := newClient(t, p)

	_, err := c.CurrentUser(context.Background())
	assert.ErrorIs(t, err, sessionsync.ErrNoSession)

	_, err = c.Profile(context.Background(), "anything")
	assert.ErrorIs(t, err, sessionsync.ErrNoSession)

	assert.NoError(t, c.SignOut(context.Background()), "signing out without a session is a no-op")
}

func TestSignIn_CurrentUserAndProfile(t *testing.T) {
	p := startPortal(t)
	u := p.register(t, testEmail, role.HealthWorker)
	c := newClient(t, p)
	events := subscribe(t, c)
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, testEmail, testPassword))
	assert.True(t, c.SignedIn())

	evt := nextEvent(t, events)
	assert.Equal(t, sessionsync.EventSignedIn, evt.Kind)
	require.NotNil(t, evt.Session)
	assert.Equal(t, u.ID.String(), evt.Session.ID)

	sess, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), sess.ID)
	assert.Equal(t, testEmail, sess.Email)
	assert.Equal(t, role.HealthWorker, sess.Role)

	prof, err := c.Profile(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, prof)
	assert.Equal(t, sess.ID, prof.ID)
	assert.Equal(t, role.HealthWorker, prof.Role)
	assert.Equal(t, "Lola Basyang", prof.FullName)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	p := startPortal(t)
	p.register(t, testEmail, role.Resident)
	c := newClient(t, p)

	err := c.SignIn(context.Background(), testEmail, "wrong-password")
	assert.ErrorIs(t, err, authclient.ErrInvalidCredentials)
	assert.False(t, c.SignedIn())
}

func TestSignUp_SignsIn(t *testing.T) {
	p := startPortal(t)
	c := newClient(t, p)
	events := subscribe(t, c)
	ctx := context.Background()

	require.NoError(t, c.SignUp(ctx, sessionsync.SignUpRequest{Email: testEmail, Password: testPassword, DisplayName: "Lola"}))
	assert.Equal(t, sessionsync.EventSignedIn, nextEvent(t, events).Kind)

	err := c.SignUp(ctx, sessionsync.SignUpRequest{Email: testEmail, Password: testPassword})
	assert.ErrorIs(t, err, authclient.ErrEmailTaken)

	err = c.SignUp(ctx, sessionsync.SignUpRequest{Email: "bad", Password: "x"})
	assert.ErrorIs(t, err, authclient.ErrValidation)
}

func TestProfile_Missing(t *testing.T) {
	p := startPortal(t)
	u := p.register(t, testEmail, role.Resident)
	p.store.DeleteProfile(u.ID)
	c := newClient(t, p)
	require.NoError(t, c.SignIn(context.Background(), testEmail, testPassword))

	prof, err := c.Profile(context.Background(), u.ID.String())
	assert.NoError(t, err)
	assert.Nil(t, prof)
}

func TestEvents_InEmissionOrder(t *testing.T) {
	p := startPortal(t)
	p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	events := subscribe(t, c)
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, testEmail, testPassword))
	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.SignOut(ctx))

	assert.Equal(t, sessionsync.EventSignedIn, nextEvent(t, events).Kind)
	refreshed := nextEvent(t, events)
	assert.Equal(t, sessionsync.EventTokenRefreshed, refreshed.Kind)
	assert.NotNil(t, refreshed.Session)
	out := nextEvent(t, events)
	assert.Equal(t, sessionsync.EventSignedOut, out.Kind)
	assert.Nil(t, out.Session)

	select {
	case evt := <-events:
		t.Fatalf("unexpected event %s", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}

	_, err := c.CurrentUser(ctx)
	assert.ErrorIs(t, err, sessionsync.ErrNoSession)
}

func TestEvents_PortalRevocation(t *testing.T) {
	p := startPortal(t)
	p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	events := subscribe(t, c)
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, testEmail, testPassword))
	assert.Equal(t, sessionsync.EventSignedIn, nextEvent(t, events).Kind)
	require.Eventually(t, func() bool { return p.svc.Broker().Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	p.clock.Advance(2 * time.Hour)
	n, err := p.svc.ExpireSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	evt := nextEvent(t, events)
	assert.Equal(t, sessionsync.EventSignedOut, evt.Kind)
	assert.Nil(t, evt.Session)
	assert.False(t, c.SignedIn())
}

func TestEvents_UserUpdated(t *testing.T) {
	p := startPortal(t)
	u := p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	events := subscribe(t, c)
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, testEmail, testPassword))
	assert.Equal(t, sessionsync.EventSignedIn, nextEvent(t, events).Kind)
	require.Eventually(t, func() bool { return p.svc.Broker().Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	admin := &auth.Identity{Role: role.Admin}
	require.NoError(t, p.svc.AssignRole(ctx, admin, u.ID, role.Tanod))

	evt := nextEvent(t, events)
	assert.Equal(t, sessionsync.EventUserUpdated, evt.Kind)
	require.NotNil(t, evt.Session, "user updates keep the session present")
	assert.Equal(t, u.ID.String(), evt.Session.ID)
}

func TestEvents_FollowSessionAcrossRefresh(t *testing.T) {
	p := startPortal(t)
	u := p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	events := subscribe(t, c)
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, testEmail, testPassword))
	assert.Equal(t, sessionsync.EventSignedIn, nextEvent(t, events).Kind)
	require.Eventually(t, func() bool { return p.svc.Broker().Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	// A later expiry gives the refreshed token different claims.
	p.clock.Advance(10 * time.Minute)
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, sessionsync.EventTokenRefreshed, nextEvent(t, events).Kind)

	admin := &auth.Identity{Role: role.Admin}
	require.NoError(t, p.svc.AssignRole(ctx, admin, u.ID, role.Tanod))
	evt := nextEvent(t, events)
	assert.Equal(t, sessionsync.EventUserUpdated, evt.Kind)
	require.NotNil(t, evt.Session)

	p.clock.Advance(2 * time.Hour)
	n, err := p.svc.ExpireSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	evt = nextEvent(t, events)
	assert.Equal(t, sessionsync.EventSignedOut, evt.Kind)
	assert.Nil(t, evt.Session)
	assert.False(t, c.SignedIn())
}

func TestEvents_ReconnectsAfterStreamFailures(t *testing.T) {
	var failures atomic.Int32
	failures.Store(3)
	flaky := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/auth/v1/events" && failures.Add(-1) >= 0 {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	p := startPortal(t, flaky)
	u := p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	events := subscribe(t, c)
	ctx := context.Background()

	require.NoError(t, c.SignIn(ctx, testEmail, testPassword))
	assert.Equal(t, sessionsync.EventSignedIn, nextEvent(t, events).Kind)
	require.Eventually(t, func() bool { return p.svc.Broker().Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, failures.Load(), int32(0))
	assert.True(t, c.SignedIn(), "stream failures do not end the session")

	admin := &auth.Identity{Role: role.Admin}
	require.NoError(t, p.svc.AssignRole(ctx, admin, u.ID, role.HealthWorker))
	assert.Equal(t, sessionsync.EventUserUpdated, nextEvent(t, events).Kind)
}

func TestCurrentUser_RejectedTokenIsDropped(t *testing.T) {
	p := startPortal(t)
	p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx, testEmail, testPassword))

	// Expired but not yet swept: the portal rejects the token without an event.
	p.clock.Advance(2 * time.Hour)

	_, err := c.CurrentUser(ctx)
	assert.ErrorIs(t, err, sessionsync.ErrNoSession)
	assert.False(t, c.SignedIn())
}

func TestAutoRefresh(t *testing.T) {
	p := startPortal(t)
	p.register(t, testEmail, role.Resident)
	// A margin close to the one-hour token lifetime refreshes almost at once.
	c := newClient(t, p, authclient.WithRefreshMargin(time.Hour-50*time.Millisecond))
	events := subscribe(t, c)

	require.NoError(t, c.SignIn(context.Background(), testEmail, testPassword))
	assert.Equal(t, sessionsync.EventSignedIn, nextEvent(t, events).Kind)
	assert.Equal(t, sessionsync.EventTokenRefreshed, nextEvent(t, events).Kind)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	url := srv.URL
	srv.Close()

	c := authclient.New(url)
	defer c.Close()

	err := c.SignIn(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	var apiErr *authclient.APIError
	assert.False(t, errors.As(err, &apiErr), "connection errors are not API errors")
}

func TestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	tr := &http.Transport{}
	defer tr.CloseIdleConnections()

	c := authclient.New(srv.URL, authclient.WithHTTPClient(&http.Client{Transport: tr}))
	defer c.Close()

	err := c.SignIn(context.Background(), testEmail, testPassword)
	var apiErr *authclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestClose(t *testing.T) {
	p := startPortal(t)
	p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	events := subscribe(t, c)
	require.NoError(t, c.SignIn(context.Background(), testEmail, testPassword))

	c.Close()
	c.Close()

	for range events {
	}
	_, err := c.OnAuthStateChange(context.Background())
	assert.ErrorIs(t, err, authclient.ErrClosed)
}

func TestSubscription_ReleasedOnCancel(t *testing.T) {
	p := startPortal(t)
	c := newClient(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.OnAuthStateChange(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
