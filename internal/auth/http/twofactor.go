package http

import (
	"errors"
	"net/http"

	"github.com/pulsemetric/insight/internal/auth/service"
	"github.com/pulsemetric/insight/pkg/authsdk"
	"github.com/pulsemetric/insight/pkg/httpx"
	"github.com/pulsemetric/insight/pkg/slogx"
)

// TwoFactorHandler handles all two-factor management endpoints.
type TwoFactorHandler struct {
	TwoFactorService *service.TwoFactorService
}

// HandleSetup handles POST /v1/2fa/setup
//
//	@Summary		Begin two-factor setup
//	@Description	Generates a TOTP secret and backup codes for the authenticated user. The secret and codes are shown once and stay inert until verified.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFactorSetupResponse	"Secret, provisioning URI, and backup codes"
//	@Failure		401	{object}	authsdk.ErrorResponse			"Invalid or missing access token"
//	@Failure		409	{object}	authsdk.ErrorResponse			"Two-factor already enabled"
//	@Failure		500	{object}	authsdk.ErrorResponse			"Internal server error"
//	@Router			/v1/2fa/setup [post].
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	setup, err := h.TwoFactorService.Setup(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrTwoFactorAlreadyEnabled) {
			authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict,
				"two-factor authentication is already enabled").WriteError(w)
			return
		}
		log.Error("two-factor setup failed", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		BackupCodes:     setup.BackupCodes,
	})
}

// HandleVerify handles POST /v1/2fa/verify
//
//	@Summary		Confirm two-factor setup
//	@Description	Verifies a TOTP code against the pending secret and enables the two-factor requirement.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TwoFactorVerifyRequest	true	"TOTP code"
//	@Success		204		"Two-factor enabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code or no pending setup"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Two-factor already enabled"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/2fa/verify [post].
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TwoFactorVerifyRequest
	if err := httpx.ReadJSON(r, &req); err != nil || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TwoFactorService.Verify(ctx, userID, req.Code); err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorAlreadyEnabled):
			authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict,
				"two-factor authentication is already enabled").WriteError(w)
		case errors.Is(err, service.ErrTwoFactorNotSetUp):
			authsdk.NewAPIError(http.StatusBadRequest, "two_factor_not_set_up",
				"begin setup before verifying a code").WriteError(w)
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			log.Warn("invalid verification code", "user_id", userID)
			authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidTwoFactorCode,
				"the code is not valid for the pending secret").WriteError(w)
		default:
			log.Error("two-factor verify failed", "user_id", userID, "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles POST /v1/2fa/disable
//
//	@Summary		Disable two-factor
//	@Description	Turns off two-factor authentication after re-confirming the account password. The secret and all backup codes are discarded.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TwoFactorDisableRequest	true	"Account password"
//	@Success		204		"Two-factor disabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Two-factor not enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid access token or wrong password"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/2fa/disable [post].
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TwoFactorDisableRequest
	if err := httpx.ReadJSON(r, &req); err != nil || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.TwoFactorService.Disable(ctx, userID, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorNotEnabled):
			authsdk.NewAPIError(http.StatusBadRequest, "two_factor_not_enabled",
				"two-factor authentication is not enabled").WriteError(w)
		case errors.Is(err, service.ErrInvalidPassword):
			log.Warn("two-factor disable rejected", "user_id", userID)
			authsdk.NewAPIError(http.StatusUnauthorized, "invalid_password",
				"the password is incorrect").WriteError(w)
		default:
			log.Error("two-factor disable failed", "user_id", userID, "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateBackupCodes handles POST /v1/2fa/backup-codes
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces the user's remaining backup codes with a fresh set. Previously issued codes stop working.
//	@Tags			TwoFactor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.BackupCodesResponse	"New backup codes (shown once)"
//	@Failure		400	{object}	authsdk.ErrorResponse		"Two-factor not enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/2fa/backup-codes [post].
func (h *TwoFactorHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	codes, err := h.TwoFactorService.RegenerateBackupCodes(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrTwoFactorNotEnabled) {
			authsdk.NewAPIError(http.StatusBadRequest, "two_factor_not_enabled",
				"two-factor authentication is not enabled").WriteError(w)
			return
		}
		log.Error("backup code regeneration failed", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}
