package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pulsemetric/insight/internal/auth/domain"
	"github.com/pulsemetric/insight/internal/auth/store"
	"github.com/pulsemetric/insight/pkg/cryptox"
	"github.com/pulsemetric/insight/pkg/idx"
	"github.com/pulsemetric/insight/pkg/slogx"
)

var (
	ErrProvisionUnauthorized = errors.New("unauthorized provision attempt")
	ErrInvalidRole           = errors.New("invalid_role")
	ErrUsernameTaken         = errors.New("username_taken")
)

// ProvisionService creates user accounts. The first account of a fresh
// deployment can be created without credentials; after that a pre-shared
// provision token is required.
type ProvisionService struct {
	Store store.Store
	Token string // Pre-configured provision token
}

// ProvisionResult is what Provision returns. GeneratedPassword is only set
// when the caller did not supply a password.
type ProvisionResult struct {
	User              domain.User
	GeneratedPassword string
}

// Provision creates a user. When the store has no users yet, the token check
// is waived so a fresh deployment can create its first admin; every later
// call must present the configured provision token.
func (s *ProvisionService) Provision(
	ctx context.Context,
	token string,
	username, email, role, password string,
) (ProvisionResult, error) {
	l := slogx.FromContext(ctx)

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return ProvisionResult{}, err
	}

	if !empty {
		if s.Token == "" || token != s.Token {
			l.Warn("unauthorized provision attempt", slog.String("username", username))
			return ProvisionResult{}, ErrProvisionUnauthorized
		}
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return ProvisionResult{}, errors.New("username is required")
	}
	if !domain.ValidRole(role) {
		return ProvisionResult{}, ErrInvalidRole
	}

	var generated string
	if password == "" {
		generated, err = cryptox.GeneratePassword()
		if err != nil {
			return ProvisionResult{}, err
		}
		password = generated
	}

	passHash, err := cryptox.HashPassword(password)
	if err != nil {
		l.Error("failed to hash password", slog.Any("error", err))
		return ProvisionResult{}, err
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: passHash,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ProvisionResult{}, ErrUsernameTaken
		}
		return ProvisionResult{}, err
	}

	l.Info("user provisioned",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", u.Role),
	)

	return ProvisionResult{User: u, GeneratedPassword: generated}, nil
}
