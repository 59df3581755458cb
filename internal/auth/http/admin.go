package http

import (
	"errors"
	"net/http"

	"github.com/pulsemetric/insight/internal/auth/service"
	"github.com/pulsemetric/insight/internal/auth/store"
	"github.com/pulsemetric/insight/pkg/authsdk"
	"github.com/pulsemetric/insight/pkg/httpx"
	"github.com/pulsemetric/insight/pkg/slogx"
)

// AccountStatusHandler handles POST /v1/users/{id}/status.
type AccountStatusHandler struct {
	UserService *service.UserService
}

// ServeHTTP godoc
//
//	@Summary		Set account status
//	@Description	Enables or disables an account. Disabling revokes all of the account's refresh tokens. Admin role required.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string							true	"User id"
//	@Param			request	body	authsdk.AccountStatusRequest	true	"New status"
//	@Success		204		"Status updated"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request or unknown status"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Caller is not an admin"
//	@Failure		404		{object}	authsdk.ErrorResponse	"Unknown user id"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/users/{id}/status [post].
func (h *AccountStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	targetID := r.PathValue("id")
	if targetID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	var req authsdk.AccountStatusRequest
	if err := httpx.ReadJSON(r, &req); err != nil || req.Status == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.UserService.SetStatus(ctx, targetID, req.Status); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			authsdk.NewAPIError(http.StatusBadRequest, "invalid_status",
				"status must be active or disabled").WriteError(w)
		case errors.Is(err, store.ErrNotFound):
			authsdk.NewAPIError(http.StatusNotFound, "user_not_found",
				"no user with that id").WriteError(w)
		default:
			log.Error("status change failed", "user_id", targetID, "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
