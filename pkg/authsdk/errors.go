package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulsemetric/insight/pkg/httpx"
)

// Error codes used across the API. Clients should branch on these rather
// than on the human-readable descriptions.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidCredentials   = "invalid_credentials"
	ErrorCodeTwoFactorRequired    = "two_factor_required"
	ErrorCodeInvalidTwoFactorCode = "invalid_two_factor_code"
	ErrorCodeInvalidRefreshToken  = "invalid_refresh_token"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeInsufficientRole     = "insufficient_role"
	ErrorCodeConflict             = "conflict"
	ErrorCodeServerError          = "server_error"
)

// APIError is the error type shared by the server handlers (to write HTTP
// responses) and the SDK client (to surface failures to callers).
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// Predefined errors returned by the API.
var (
	// ErrInvalidRequest is returned when the request body is malformed or
	// missing required fields.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidCredentials is returned when the username, password, or
	// supplied second factor is wrong. Deliberately vague about which.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid credentials",
	}

	// ErrInvalidRefreshToken is returned when a refresh token is unknown,
	// expired, or revoked.
	ErrInvalidRefreshToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidRefreshToken,
		Description: "the refresh token is invalid, expired, or revoked",
	}

	// ErrInvalidToken is returned when the bearer access token is missing,
	// invalid, or expired.
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, or expired",
	}

	// ErrInsufficientRole is returned when the caller's role does not permit
	// the operation.
	ErrInsufficientRole = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientRole,
		Description: "the authenticated user does not have the required role",
	}

	// ErrServerError is returned for unexpected internal failures.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewAPIError builds a custom APIError for cases the predefined set doesn't
// cover, like the 2FA state-machine conflicts.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// TwoFactorRequiredError is returned when the password was correct but the
// account has two-factor enabled and no code was supplied. It is a distinct
// type so the client can prompt for a code instead of reporting bad
// credentials.
type TwoFactorRequiredError struct{}

// Error implements the error interface.
func (e *TwoFactorRequiredError) Error() string {
	return "two-factor authentication code required"
}

// WriteError writes the challenge with the two_factor_required flag set.
func (e *TwoFactorRequiredError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:             ErrorCodeTwoFactorRequired,
		ErrorDescription:  "a two-factor authentication code is required to complete this login",
		TwoFactorRequired: true,
	})
}

// parseErrorResponse turns an HTTP error response into a typed error.
// Returns nil for 2xx responses.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if errResp.TwoFactorRequired {
			return &TwoFactorRequiredError{}
		}
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
