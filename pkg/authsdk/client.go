package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a small HTTP client for the Insight auth service, for use by
// the platform's other services and by integration tests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates an auth service client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login authenticates with a username, password, and optional two-factor
// code. A *TwoFactorRequiredError is returned when the password was correct
// but the account needs a code.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/login", "", req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var resp TokenResponse
	req := RefreshRequest{RefreshToken: refreshToken}
	if err := c.postJSON(ctx, "/v1/auth/refresh", "", req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes a refresh token. Revoking an already-revoked or unknown
// token still succeeds.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := RefreshRequest{RefreshToken: refreshToken}
	return c.postJSON(ctx, "/v1/auth/logout", "", req, nil, http.StatusNoContent)
}

// Me returns the profile of the user the access token belongs to.
func (c *Client) Me(ctx context.Context, accessToken string) (*UserSummary, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/v1/auth/me"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var out UserSummary
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword updates the caller's password. All of the user's refresh
// tokens are revoked server-side on success.
func (c *Client) ChangePassword(ctx context.Context, accessToken string, req ChangePasswordRequest) error {
	return c.postJSON(ctx, "/v1/auth/password", accessToken, req, nil, http.StatusNoContent)
}

// SetupTwoFactor begins two-factor enrolment for the authenticated user.
func (c *Client) SetupTwoFactor(ctx context.Context, accessToken string) (*TwoFactorSetupResponse, error) {
	var resp TwoFactorSetupResponse
	if err := c.postJSON(ctx, "/v1/2fa/setup", accessToken, struct{}{}, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyTwoFactor confirms enrolment with a code from the authenticator app.
func (c *Client) VerifyTwoFactor(ctx context.Context, accessToken, code string) error {
	req := TwoFactorVerifyRequest{Code: code}
	return c.postJSON(ctx, "/v1/2fa/verify", accessToken, req, nil, http.StatusNoContent)
}

// DisableTwoFactor turns off two-factor for the authenticated user. The
// current password is required as confirmation.
func (c *Client) DisableTwoFactor(ctx context.Context, accessToken, password string) error {
	req := TwoFactorDisableRequest{Password: password}
	return c.postJSON(ctx, "/v1/2fa/disable", accessToken, req, nil, http.StatusNoContent)
}

// RegenerateBackupCodes replaces the user's backup codes with a fresh set.
func (c *Client) RegenerateBackupCodes(ctx context.Context, accessToken string) (*BackupCodesResponse, error) {
	var resp BackupCodesResponse
	if err := c.postJSON(ctx, "/v1/2fa/backup-codes", accessToken, struct{}{}, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Livez reports whether the service process is up.
func (c *Client) Livez(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/livez"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var out HealthResponse
	return decodeJSON(resp, &out, http.StatusOK)
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// postJSON sends a JSON body and decodes the response into out when out is
// non-nil. An empty accessToken sends the request unauthenticated.
func (c *Client) postJSON(
	ctx context.Context,
	path, accessToken string,
	body, out any,
	expectedStatus int,
) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	if out == nil {
		defer resp.Body.Close()
		if resp.StatusCode != expectedStatus {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return parseErrorResponse(resp, bodyBytes)
		}
		return nil
	}

	return decodeJSON(resp, out, expectedStatus)
}

// decodeJSON decodes a JSON response into target, converting non-expected
// statuses into typed errors.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
