package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barangayhub/portal/internal/auth"
	"github.com/barangayhub/portal/internal/role"
)

func testUser() *auth.User {
	return &auth.User{ID: uuid.New(), Email: "kagawad@brgy.example.ph", Role: role.BarangayOfficial}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	issuer := auth.NewTokenIssuer(testSecret, func() time.Time { return now })
	u := testUser()
	sid := uuid.New()

	raw, err := issuer.Issue(u, sid, now.Add(time.Hour))
	require.NoError(t, err)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.Subject)
	assert.Equal(t, sid.String(), claims.SessionID)
	assert.Equal(t, u.Email, claims.Email)
	assert.Equal(t, role.BarangayOfficial, claims.Role)
	assert.Equal(t, "barangay-portal", claims.Issuer)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer := auth.NewTokenIssuer(testSecret, clock)
	u := testUser()

	expired, err := issuer.Issue(u, uuid.New(), now.Add(-time.Minute))
	require.NoError(t, err)

	foreign, err := auth.NewTokenIssuer("other", clock).Issue(u, uuid.New(), now.Add(time.Hour))
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   u.ID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "barangay-portal",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "a.b.c"},
		{name: "expired", token: expired},
		{name: "foreign secret", token: foreign},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "alg none", token: unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Parse(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}
