package jwtx_test

import (
	"testing"
	"time"

	"github.com/pulsemetric/insight/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewAccessClaims(t *testing.T) {
	now := time.Now().UTC()
	claims := jwtx.NewAccessClaims(
		"user-1", "alice", "alice@example.x", "analyst",
		time.Hour, "insight-auth", now,
	)

	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "alice@example.x", claims.Email)
	require.Equal(t, "analyst", claims.Role)
	require.Equal(t, "insight-auth", claims.Issuer)
	require.NotEmpty(t, claims.ID)

	require.WithinDuration(t, now, claims.IssuedAt.Time, time.Second)
	require.WithinDuration(t, now.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestValidateIssuer(t *testing.T) {
	claims := jwtx.NewAccessClaims(
		"user-1", "alice", "", "viewer",
		time.Hour, "insight-auth", time.Now().UTC(),
	)

	require.NoError(t, claims.ValidateIssuer("insight-auth"))
	require.ErrorIs(t, claims.ValidateIssuer("somewhere-else"), jwtx.ErrIssuer)

	// Empty expectation disables the check
	require.NoError(t, claims.ValidateIssuer(""))
}

func TestValidateExpiry(t *testing.T) {
	t.Run("live token passes", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"user-1", "alice", "", "viewer",
			time.Hour, "insight-auth", time.Now().UTC(),
		)
		require.NoError(t, claims.ValidateExpiry())
	})

	t.Run("expired token fails", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"user-1", "alice", "", "viewer",
			time.Minute, "insight-auth", time.Now().UTC().Add(-time.Hour),
		)
		require.ErrorIs(t, claims.ValidateExpiry(), jwtx.ErrExpired)
	})

	t.Run("future token fails", func(t *testing.T) {
		claims := jwtx.NewAccessClaims(
			"user-1", "alice", "", "viewer",
			time.Hour, "insight-auth", time.Now().UTC().Add(time.Hour),
		)
		require.ErrorIs(t, claims.ValidateExpiry(), jwtx.ErrNotYetValid)
	})
}

func TestNewJTIUniqueness(t *testing.T) {
	seen := make(map[string]bool, 100)
	for range 100 {
		jti := jwtx.NewJTI()
		require.NotEmpty(t, jti)
		require.NotContains(t, seen, jti)
		seen[jti] = true
	}
}
