package domain

import "time"

// TwoFactorSetup is the one-time enrolment material returned when a user
// begins two-factor setup. None of it is ever returned again.
type TwoFactorSetup struct {
	Secret          string   // base32 encoded TOTP secret
	ProvisioningURI string   // otpauth:// URL for QR code generation
	BackupCodes     []string // plaintext backup codes, shown once
}

// BackupCode is a stored single-use recovery code. Only the argon2id hash is
// persisted; the row is deleted when the code is consumed.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	CreatedAt time.Time
}
