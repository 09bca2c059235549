package authclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barangayhub/portal/internal/auth"
	"github.com/barangayhub/portal/internal/role"
	"github.com/barangayhub/portal/internal/sessionsync"
)

func waitFor(t *testing.T, s *sessionsync.Synchronizer, cond func(sessionsync.Snapshot) bool) sessionsync.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.Snapshot()) }, 3*time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func TestSynchronizer_AgainstPortal(t *testing.T) {
	p := startPortal(t)
	u := p.register(t, testEmail, role.Resident)
	c := newClient(t, p)
	ctx := context.Background()

	s := sessionsync.New(c, c, sessionsync.WithResolveTimeout(2*time.Second))
	require.NoError(t, s.Start(ctx))
	defer s.Close()

	snap := waitFor(t, s, func(s sessionsync.Snapshot) bool { return s.State == sessionsync.StateAnonymous })
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Session)
	assert.ErrorIs(t, snap.Err, sessionsync.ErrNotFound)

	require.NoError(t, s.SignIn(ctx, testEmail, testPassword))
	snap = waitFor(t, s, func(s sessionsync.Snapshot) bool { return s.State == sessionsync.StateAuthenticated })
	require.NotNil(t, snap.Session)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, u.ID.String(), snap.Session.ID)
	assert.Equal(t, snap.Session.ID, snap.Profile.ID)
	assert.True(t, snap.IsResident())
	assert.False(t, snap.IsTanod())
	assert.Nil(t, snap.Err)

	// A role change on the portal reaches the synchronizer through the event stream.
	require.Eventually(t, func() bool { return p.svc.Broker().Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.svc.AssignRole(ctx, &auth.Identity{Role: role.Admin}, u.ID, role.Tanod))
	snap = waitFor(t, s, func(s sessionsync.Snapshot) bool { return s.IsTanod() })
	assert.False(t, snap.IsResident())
	assert.Equal(t, sessionsync.StateAuthenticated, snap.State)

	require.NoError(t, s.SignOut(ctx))
	snap = waitFor(t, s, func(s sessionsync.Snapshot) bool { return s.State == sessionsync.StateAnonymous })
	assert.Nil(t, snap.Session)
	assert.Nil(t, snap.Profile)
	assert.Nil(t, snap.Err)
	assert.False(t, snap.IsTanod())
}
