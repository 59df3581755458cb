package http

import (
	"errors"
	"net/http"

	"github.com/pulsemetric/insight/internal/auth/service"
	"github.com/pulsemetric/insight/pkg/authsdk"
	"github.com/pulsemetric/insight/pkg/httpx"
	"github.com/pulsemetric/insight/pkg/slogx"
)

// ProvisionHandler handles POST /v1/provision.
type ProvisionHandler struct {
	ProvisionService *service.ProvisionService
}

// ServeHTTP godoc
//
//	@Summary		Provision a user account
//	@Description	Creates a user. On a fresh deployment with no users the X-Provision-Token header is waived; afterwards it must match the configured token.
//	@Tags			Provision
//	@Accept			json
//	@Produce		json
//	@Param			X-Provision-Token	header		string						false	"Pre-shared provision token"
//	@Param			request				body		authsdk.ProvisionRequest	true	"Account details"
//	@Success		201					{object}	authsdk.ProvisionResponse	"Created account (password included only when generated)"
//	@Failure		400					{object}	authsdk.ErrorResponse		"Malformed request or invalid role"
//	@Failure		401					{object}	authsdk.ErrorResponse		"Missing or wrong provision token"
//	@Failure		409					{object}	authsdk.ErrorResponse		"Username already taken"
//	@Failure		500					{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/v1/provision [post].
func (h *ProvisionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.ProvisionRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	token := r.Header.Get("X-Provision-Token")

	result, err := h.ProvisionService.Provision(ctx, token, req.Username, req.Email, req.Role, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProvisionUnauthorized):
			authsdk.NewAPIError(http.StatusUnauthorized, "unauthorized",
				"a valid provision token is required").WriteError(w)
		case errors.Is(err, service.ErrInvalidRole):
			authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
				"role must be one of admin, analyst, viewer").WriteError(w)
		case errors.Is(err, service.ErrUsernameTaken):
			authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict,
				"the username is already taken").WriteError(w)
		default:
			log.Error("provision failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.ProvisionResponse{
		ID:       result.User.ID,
		Username: result.User.Username,
		Password: result.GeneratedPassword,
	})
}
