package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/service"
	"github.com/pulsemetric/insight/internal/auth/store/drivers/sqlite"
	"github.com/pulsemetric/insight/pkg/authsdk"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/httpx"
	"github.com/pulsemetric/insight/pkg/idx"
	"github.com/pulsemetric/insight/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "insight-http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type testEnv struct {
	store     *sqlite.Store
	signer    *jwtx.HS256
	auth      *service.AuthService
	tokens    *service.TokenService
	users     *service.UserService
	twoFactor *service.TwoFactorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), "insight-auth-test")
	require.NoError(t, err)

	tokens := &service.TokenService{
		Signer:     signer,
		Store:      st,
		Issuer:     "insight-auth-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
	twoFactor := &service.TwoFactorService{Store: st, Issuer: "insight-auth-test", Skew: 1}

	return &testEnv{
		store:     st,
		signer:    signer,
		tokens:    tokens,
		twoFactor: twoFactor,
		users:     &service.UserService{Store: st},
		auth: &service.AuthService{
			Store:     st,
			Tokens:    tokens,
			TwoFactor: twoFactor,
		},
	}
}

func (e *testEnv) createUser(t *testing.T, username, password string) domain.User {
	t.Helper()
	return e.createUserWithRole(t, username, password, domain.RoleAnalyst)
}

func (e *testEnv) createUserWithRole(t *testing.T, username, password, role string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        username + "@example.test",
		PasswordHash: hash,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.Users().CreateUser(context.Background(), u))
	return u
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) authsdk.ErrorResponse {
	t.Helper()

	var body authsdk.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLoginHandler(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "correct-horse")
	handler := &LoginHandler{AuthService: env.auth}

	t.Run("success returns token pair", func(t *testing.T) {
		rec := postJSON(t, handler, "/v1/auth/login", authsdk.LoginRequest{
			Username: "alice",
			Password: "correct-horse",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var body authsdk.TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotEmpty(t, body.AccessToken)
		require.NotEmpty(t, body.RefreshToken)
		require.Equal(t, "Bearer", body.TokenType)
		require.Equal(t, int64(60), body.ExpiresIn)

		require.NotNil(t, body.User)
		require.Equal(t, "alice", body.User.Username)
		require.False(t, body.User.TwoFactorEnabled)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		rec := postJSON(t, handler, "/v1/auth/login", authsdk.LoginRequest{
			Username: "alice",
			Password: "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		body := decodeError(t, rec)
		require.Equal(t, "invalid_credentials", body.Error)
		require.False(t, body.TwoFactorRequired)
	})

	t.Run("missing fields is 400", func(t *testing.T) {
		rec := postJSON(t, handler, "/v1/auth/login", authsdk.LoginRequest{Username: "alice"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginHandlerSignalsTwoFactorRequired(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "alice", "correct-horse")
	handler := &LoginHandler{AuthService: env.auth}

	setup, err := env.twoFactor.Setup(context.Background(), u.ID)
	require.NoError(t, err)
	// Enable via a backup code login path is not possible before Verify, so
	// flip the flag the way Verify does.
	require.NoError(t, env.store.Users().EnableTwoFactor(context.Background(), u.ID))

	rec := postJSON(t, handler, "/v1/auth/login", authsdk.LoginRequest{
		Username: "alice",
		Password: "correct-horse",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeError(t, rec)
	require.Equal(t, "two_factor_required", body.Error)
	require.True(t, body.TwoFactorRequired, "clients key off this flag to prompt for a code")

	// A wrong code is reported as such, not as bad credentials: the password
	// already checked out, so the client should re-prompt for the code only.
	rec = postJSON(t, handler, "/v1/auth/login", authsdk.LoginRequest{
		Username:      "alice",
		Password:      "correct-horse",
		TwoFactorCode: "000000",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_two_factor_code", decodeError(t, rec).Error)

	// Supplying a backup code completes the login
	rec = postJSON(t, handler, "/v1/auth/login", authsdk.LoginRequest{
		Username:      "alice",
		Password:      "correct-horse",
		TwoFactorCode: setup.BackupCodes[0],
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshAndLogoutHandlers(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "alice", "correct-horse")

	pair, err := env.tokens.IssueTokenPair(context.Background(), u)
	require.NoError(t, err)

	refresh := &RefreshHandler{TokenService: env.tokens}
	logout := &LogoutHandler{TokenService: env.tokens}

	t.Run("refresh returns new access token only", func(t *testing.T) {
		rec := postJSON(t, refresh, "/v1/auth/refresh", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken})
		require.Equal(t, http.StatusOK, rec.Code)

		var body authsdk.TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotEmpty(t, body.AccessToken)
		require.Empty(t, body.RefreshToken)
		require.Nil(t, body.User)
	})

	t.Run("unknown refresh token is 401", func(t *testing.T) {
		rec := postJSON(t, refresh, "/v1/auth/refresh", authsdk.RefreshRequest{RefreshToken: "bogus"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid_refresh_token", decodeError(t, rec).Error)
	})

	t.Run("logout revokes and is idempotent", func(t *testing.T) {
		rec := postJSON(t, logout, "/v1/auth/logout", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = postJSON(t, refresh, "/v1/auth/refresh", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = postJSON(t, logout, "/v1/auth/logout", authsdk.RefreshRequest{RefreshToken: pair.RefreshToken})
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestUserInfoHandler(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "alice", "correct-horse")

	handler := httpx.Chain(
		&UserInfoHandler{UserService: env.users},
		httpx.AuthnMiddleware(env.signer),
	)

	pair, err := env.tokens.IssueTokenPair(context.Background(), u)
	require.NoError(t, err)

	t.Run("returns profile for valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body authsdk.UserSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, u.ID, body.ID)
		require.Equal(t, "alice", body.Username)
		require.Equal(t, domain.RoleAnalyst, body.Role)
		require.False(t, body.TwoFactorEnabled)
	})

	t.Run("rejects missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPasswordHandler(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "alice", "old-password")

	handler := httpx.Chain(
		&PasswordHandler{UserService: env.users},
		httpx.AuthnMiddleware(env.signer),
	)

	pair, err := env.tokens.IssueTokenPair(context.Background(), u)
	require.NoError(t, err)

	authedPost := func(t *testing.T, body any) *httptest.ResponseRecorder {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/password", bytes.NewReader(payload))
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("wrong current password is 401", func(t *testing.T) {
		rec := authedPost(t, authsdk.ChangePasswordRequest{
			CurrentPassword: "not-it",
			NewPassword:     "new-password",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid_password", decodeError(t, rec).Error)
	})

	t.Run("change succeeds with 204", func(t *testing.T) {
		rec := authedPost(t, authsdk.ChangePasswordRequest{
			CurrentPassword: "old-password",
			NewPassword:     "new-password",
		})
		require.Equal(t, http.StatusNoContent, rec.Code)

		_, err := env.auth.Login(context.Background(), "alice", "new-password", "")
		require.NoError(t, err)
	})
}

func TestProvisionHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := &ProvisionHandler{
		ProvisionService: &service.ProvisionService{Store: env.store, Token: "super-secret"},
	}

	t.Run("first user created without token", func(t *testing.T) {
		rec := postJSON(t, handler, "/v1/provision", authsdk.ProvisionRequest{
			Username: "admin",
			Email:    "admin@example.test",
			Role:     domain.RoleAdmin,
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var body authsdk.ProvisionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "admin", body.Username)
		require.NotEmpty(t, body.ID)
		require.Len(t, body.Password, 12, "generated password is returned once")
	})

	t.Run("later user needs the token", func(t *testing.T) {
		rec := postJSON(t, handler, "/v1/provision", authsdk.ProvisionRequest{
			Username: "bob",
			Role:     domain.RoleViewer,
			Password: "bob-password",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		payload, err := json.Marshal(authsdk.ProvisionRequest{
			Username: "bob",
			Role:     domain.RoleViewer,
			Password: "bob-password",
		})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/provision", bytes.NewReader(payload))
		req.Header.Set("X-Provision-Token", "super-secret")
		rec2 := httptest.NewRecorder()
		handler.ServeHTTP(rec2, req)
		require.Equal(t, http.StatusCreated, rec2.Code)

		var body authsdk.ProvisionResponse
		require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &body))
		require.Empty(t, body.Password, "explicit passwords are never echoed")
	})

	t.Run("invalid role is 400", func(t *testing.T) {
		payload, err := json.Marshal(authsdk.ProvisionRequest{Username: "carol", Role: "root"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/provision", bytes.NewReader(payload))
		req.Header.Set("X-Provision-Token", "super-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate username is 409", func(t *testing.T) {
		payload, err := json.Marshal(authsdk.ProvisionRequest{
			Username: "admin",
			Role:     domain.RoleViewer,
			Password: "whatever1",
		})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/provision", bytes.NewReader(payload))
		req.Header.Set("X-Provision-Token", "super-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAccountStatusHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUserWithRole(t, "root", "admin-pass", domain.RoleAdmin)
	target := env.createUser(t, "bob", "target-pass")

	adminPair, err := env.tokens.IssueTokenPair(ctx, admin)
	require.NoError(t, err)
	analystPair, err := env.tokens.IssueTokenPair(ctx, target)
	require.NoError(t, err)

	protected := httpx.Chain(&AccountStatusHandler{UserService: env.users},
		httpx.AuthnMiddleware(env.signer),
		httpx.RequireRole(domain.RoleAdmin),
	)

	do := func(t *testing.T, token, targetID string, body any) *httptest.ResponseRecorder {
		t.Helper()

		payload, err := json.Marshal(body)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/users/"+targetID+"/status", bytes.NewReader(payload))
		req.SetPathValue("id", targetID)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec
	}

	t.Run("missing token is 401", func(t *testing.T) {
		rec := do(t, "", target.ID, authsdk.AccountStatusRequest{Status: domain.StatusDisabled})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-admin is 403", func(t *testing.T) {
		rec := do(t, analystPair.AccessToken, target.ID, authsdk.AccountStatusRequest{Status: domain.StatusDisabled})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown status is 400", func(t *testing.T) {
		rec := do(t, adminPair.AccessToken, target.ID, authsdk.AccountStatusRequest{Status: "suspended"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "invalid_status", decodeError(t, rec).Error)
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		rec := do(t, adminPair.AccessToken, idx.New().String(), authsdk.AccountStatusRequest{Status: domain.StatusDisabled})
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "user_not_found", decodeError(t, rec).Error)
	})

	t.Run("admin disables and re-enables the account", func(t *testing.T) {
		rec := do(t, adminPair.AccessToken, target.ID, authsdk.AccountStatusRequest{Status: domain.StatusDisabled})
		require.Equal(t, http.StatusNoContent, rec.Code)

		_, err := env.auth.Login(ctx, "bob", "target-pass", "")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)

		rec = do(t, adminPair.AccessToken, target.ID, authsdk.AccountStatusRequest{Status: domain.StatusActive})
		require.Equal(t, http.StatusNoContent, rec.Code)

		_, err = env.auth.Login(ctx, "bob", "target-pass", "")
		require.NoError(t, err)
	})
}

func TestHealthHandlers(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(-time.Minute)

	t.Run("livez", func(t *testing.T) {
		rec := httptest.NewRecorder()
		LivezHandler(start, "v0.1.0")(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body authsdk.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "ok", body.Status)
		require.Equal(t, "v0.1.0", body.Version)
		require.NotEmpty(t, body.Uptime)
	})

	t.Run("readyz with live database", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ReadyzHandler(start, "v0.1.0", env.store)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body authsdk.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "ok", body.Status)
		require.NotNil(t, body.Checks)
		require.Equal(t, "ok", body.Checks.Database)
	})

	t.Run("readyz with closed database", func(t *testing.T) {
		st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
		require.NoError(t, err)
		require.NoError(t, st.Close())

		rec := httptest.NewRecorder()
		ReadyzHandler(start, "v0.1.0", st)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body authsdk.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "degraded", body.Status)
	})
}
