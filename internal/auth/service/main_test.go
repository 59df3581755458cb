package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store/drivers/sqlite"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/idx"
	"github.com/pulsemetric/insight/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "insight-auth-test"

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "insight-service-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

// newTestStore opens a migrated store backed by a throwaway database file. A
// file DSN avoids the per-connection isolation of plain :memory: databases
// when a test spans multiple pooled connections.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestTokenService(t *testing.T, st *sqlite.Store) *TokenService {
	t.Helper()

	signer, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), testIssuer)
	require.NoError(t, err)

	return &TokenService{
		Signer:     signer,
		Store:      st,
		Issuer:     testIssuer,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
}

// createTestUser inserts an active user with the given password hashed for
// real, so login flows exercise the production verification path.
func createTestUser(t *testing.T, ctx context.Context, st *sqlite.Store, username, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        username + "@example.test",
		PasswordHash: hash,
		Role:         domain.RoleAnalyst,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Users().CreateUser(ctx, u))
	return u
}
