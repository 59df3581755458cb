package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestSetupGeneratesPendingMaterial(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	setup, err := twoFactor.Setup(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, setup.ProvisioningURI, testIssuer)
	require.Len(t, setup.BackupCodes, 10)

	// Setup alone does not gate logins
	stored, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, stored.TwoFactorEnabled)
	require.NotNil(t, stored.TOTPSecret)
}

func TestSetupReplacesPendingSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	first, err := twoFactor.Setup(ctx, u.ID)
	require.NoError(t, err)

	second, err := twoFactor.Setup(ctx, u.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// Only the latest pending secret verifies
	staleCode, err := totp.GenerateCode(first.Secret, time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, twoFactor.Verify(ctx, u.ID, staleCode), ErrInvalidTwoFactorCode)

	code, err := totp.GenerateCode(second.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, twoFactor.Verify(ctx, u.ID, code))
}

func TestSetupRejectedWhenAlreadyEnabled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")
	enableTwoFactor(t, ctx, twoFactor, u.ID)

	_, err := twoFactor.Setup(ctx, u.ID)
	require.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
}

func TestVerifyEnablesTwoFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	setup, err := twoFactor.Setup(ctx, u.ID)
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, twoFactor.Verify(ctx, u.ID, code))

	stored, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.TwoFactorEnabled)

	// Verifying again is rejected
	require.ErrorIs(t, twoFactor.Verify(ctx, u.ID, code), ErrTwoFactorAlreadyEnabled)
}

func TestVerifyWithoutSetup(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	require.ErrorIs(t, twoFactor.Verify(ctx, u.ID, "123456"), ErrTwoFactorNotSetUp)
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	_, err := twoFactor.Setup(ctx, u.ID)
	require.NoError(t, err)

	require.ErrorIs(t, twoFactor.Verify(ctx, u.ID, "000000"), ErrInvalidTwoFactorCode)

	// An abandoned setup never starts gating logins
	stored, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, stored.TwoFactorEnabled)
}

func TestDisableTwoFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	auth, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")
	setup := enableTwoFactor(t, ctx, twoFactor, u.ID)

	t.Run("wrong password rejected", func(t *testing.T) {
		require.ErrorIs(t, twoFactor.Disable(ctx, u.ID, "wrong"), ErrInvalidPassword)
	})

	t.Run("correct password disables and clears material", func(t *testing.T) {
		require.NoError(t, twoFactor.Disable(ctx, u.ID, "password-1"))

		stored, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, stored.TwoFactorEnabled)

		count, err := st.BackupCodes().CountUserBackupCodes(ctx, u.ID)
		require.NoError(t, err)
		require.Zero(t, count)

		// Logins no longer ask for a second factor
		_, err = auth.Login(ctx, "alice", "password-1", "")
		require.NoError(t, err)

		// And old backup codes are dead
		_, err = auth.Login(ctx, "alice", "password-1", setup.BackupCodes[0])
		require.NoError(t, err, "extra code is ignored once two-factor is off")
	})

	t.Run("disabling again rejected", func(t *testing.T) {
		require.ErrorIs(t, twoFactor.Disable(ctx, u.ID, "password-1"), ErrTwoFactorNotEnabled)
	})
}

func TestRegenerateBackupCodes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	auth, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")
	setup := enableTwoFactor(t, ctx, twoFactor, u.ID)

	fresh, err := twoFactor.RegenerateBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 10)
	require.NotEqual(t, setup.BackupCodes, fresh)

	// Old codes stop working, new ones do
	_, err = auth.Login(ctx, "alice", "password-1", setup.BackupCodes[0])
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	_, err = auth.Login(ctx, "alice", "password-1", fresh[0])
	require.NoError(t, err)
}

func TestRegenerateRequiresEnabledTwoFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	_, err := twoFactor.RegenerateBackupCodes(ctx, u.ID)
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)
}

func TestTOTPSkewToleratesAdjacentStep(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, twoFactor := newTestAuthService(t, st)

	u := createTestUser(t, ctx, st, "alice", "password-1")

	setup, err := twoFactor.Setup(ctx, u.ID)
	require.NoError(t, err)

	// A code from the previous step still verifies with Skew 1
	code, err := totp.GenerateCode(setup.Secret, time.Now().Add(-30*time.Second))
	require.NoError(t, err)
	require.NoError(t, twoFactor.Verify(ctx, u.ID, code))
}
