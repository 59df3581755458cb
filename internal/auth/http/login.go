package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pulsemetric/insight/internal/auth/service"
	"github.com/pulsemetric/insight/pkg/authsdk"
	"github.com/pulsemetric/insight/pkg/httpx"
	"github.com/pulsemetric/insight/pkg/slogx"
)

// LoginHandler handles POST /v1/auth/login.
type LoginHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP godoc
//
//	@Summary		Login
//	@Description	Authenticates with username and password, plus a TOTP or backup code when two-factor is enabled.
//	@Description	Returns a JWT access token and an opaque refresh token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse	"Access and refresh tokens"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials or two-factor code required"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Login(ctx, req.Username, req.Password, req.TwoFactorCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorRequired):
			(&authsdk.TwoFactorRequiredError{}).WriteError(w)
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			// Only reachable after the password checked out, so naming the
			// code as the problem leaks nothing about the credentials.
			authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidTwoFactorCode,
				"the two-factor code is not valid").WriteError(w)
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidCredentials.WriteError(w)
		default:
			log.Error("login failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	user := userSummary(pair.User)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
		RefreshToken: pair.RefreshToken,
		User:         &user,
	})
}

// RefreshHandler handles POST /v1/auth/refresh.
type RefreshHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Refresh access token
//	@Description	Exchanges a live refresh token for a new access token. The refresh token is not rotated.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse	"New access token"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Refresh token invalid, expired, or revoked"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RefreshRequest
	if err := httpx.ReadJSON(r, &req); err != nil || req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			authsdk.ErrInvalidRefreshToken.WriteError(w)
			return
		}
		log.Error("refresh failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   int64(pair.ExpiresIn.Seconds()),
	})
}

// LogoutHandler handles POST /v1/auth/logout.
type LogoutHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Logout
//	@Description	Revokes a refresh token. Succeeds even when the token is unknown or already revoked.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	authsdk.RefreshRequest	true	"Refresh token"
//	@Success		204		"Token revoked"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RefreshRequest
	if err := httpx.ReadJSON(r, &req); err != nil || req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TokenService.Revoke(ctx, req.RefreshToken); err != nil {
		log.Error("logout failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
