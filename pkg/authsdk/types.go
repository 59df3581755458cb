// Package authsdk provides the request/response types for the Insight auth
// service API, plus a small HTTP client for other Insight services to call
// it with. The server's handlers use the same types, so the wire contract is
// defined exactly once.
package authsdk

import "time"

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`

	// TwoFactorCode carries a 6-digit TOTP code or a backup code. Required
	// once the account has two-factor enabled.
	TwoFactorCode string `json:"two_factor_code,omitempty"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"` // always "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // seconds until the access token expires
	RefreshToken string `json:"refresh_token,omitempty"`

	// User is set on login responses only.
	User *UserSummary `json:"user,omitempty"`
}

// RefreshRequest is the body for POST /v1/auth/refresh and /v1/auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the body for POST /v1/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UserSummary is returned by GET /v1/auth/me.
type UserSummary struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// TwoFactorSetupResponse is returned by POST /v1/2fa/setup. The secret and
// backup codes are shown exactly once; the server never returns them again.
type TwoFactorSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// TwoFactorVerifyRequest is the body for POST /v1/2fa/verify.
type TwoFactorVerifyRequest struct {
	Code string `json:"code"`
}

// TwoFactorDisableRequest is the body for POST /v1/2fa/disable.
type TwoFactorDisableRequest struct {
	Password string `json:"password"`
}

// BackupCodesResponse is returned by POST /v1/2fa/backup-codes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// ProvisionRequest is the body for POST /v1/provision.
type ProvisionRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`

	// Password is optional; when empty the server generates one and returns
	// it in the response.
	Password string `json:"password,omitempty"`
}

// ProvisionResponse is returned by POST /v1/provision.
type ProvisionResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// Password is only set when the server generated one.
	Password string `json:"password,omitempty"`
}

// AccountStatusRequest is the body for POST /v1/users/{id}/status.
type AccountStatusRequest struct {
	Status string `json:"status"` // "active" or "disabled"
}

// ErrorResponse is the error body shared by every endpoint.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`

	// TwoFactorRequired is set on login failures caused by a missing or
	// absent second factor, so clients can prompt for a code instead of
	// treating the attempt as bad credentials.
	TwoFactorRequired bool `json:"two_factor_required,omitempty"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of critical dependencies for /readyz.
type HealthChecks struct {
	Database string `json:"database"`
}
