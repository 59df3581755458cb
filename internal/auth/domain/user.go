package domain

import "time"

// User roles. Roles are coarse: fine-grained permissions live in the
// downstream services that consume the access token.
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2id encoded
	Role         string
	Status       string

	// TOTPSecret is set once setup begins (nullable, base32 encoded).
	TOTPSecret *string
	// TOTPConfirmedAt records when the user proved possession of the secret.
	TOTPConfirmedAt *time.Time
	// TwoFactorEnabled is only true after confirmation; a set but
	// unconfirmed secret does not gate logins.
	TwoFactorEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u.Status == StatusActive
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAnalyst, RoleViewer:
		return true
	}
	return false
}

// ValidStatus reports whether status is one of the known account statuses.
func ValidStatus(status string) bool {
	return status == StatusActive || status == StatusDisabled
}
