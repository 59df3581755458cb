package domain

import "time"

// TokenPair is what a successful login returns: the short-lived access token
// (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string        // typically "Bearer"
	ExpiresIn    time.Duration // access token lifetime

	// User is the authenticated account, echoed back in login responses so
	// clients don't need a follow-up profile call.
	User User
}

// RefreshToken models the stored refresh token record. Only a fingerprint of
// the token is stored; the usable value exists client-side only.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token can still mint access tokens at time now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
