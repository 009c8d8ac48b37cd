package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/tallystack/tallyauth/internal/auth/domain"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestTOTPEnrollmentAndEnable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p := seedUser(t, st, "alice", "pw-irrelevant-here", domain.RoleUser)

	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := &TOTPService{Store: st, Activity: newActivityService(st), Issuer: "tallyauth", Now: clk.Now}

	enrollment, err := svc.GenerateSecret(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URI, "otpauth://totp/")
	require.Contains(t, enrollment.URI, "tallyauth")

	// The secret is pending: stored but not enabled.
	got, err := st.Profiles().GetProfileByID(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.TwoFactorEnabled)
	require.NotNil(t, got.TwoFactorSecret)
	require.Equal(t, enrollment.Secret, *got.TwoFactorSecret)

	t.Run("wrong code does not enable", func(t *testing.T) {
		err := svc.Enable(ctx, p.ID, "000000")
		require.ErrorIs(t, err, domain.ErrInvalidTwoFactorCode())

		got, err := st.Profiles().GetProfileByID(ctx, p.ID)
		require.NoError(t, err)
		require.False(t, got.TwoFactorEnabled)
	})

	t.Run("valid code enables", func(t *testing.T) {
		require.NoError(t, svc.Enable(ctx, p.ID, codeAt(t, enrollment.Secret, clk.Now())))

		got, err := st.Profiles().GetProfileByID(ctx, p.ID)
		require.NoError(t, err)
		require.True(t, got.TwoFactorEnabled)

		entries := queryActivity(t, st, domain.ActivityFilter{AccountID: p.ID, Type: domain.ActivitySettingsChanged})
		require.Len(t, entries, 1)
		require.Equal(t, domain.SeverityInfo, entries[0].Severity)
	})

	t.Run("cannot re-enroll while enabled", func(t *testing.T) {
		_, err := svc.GenerateSecret(ctx, p.ID)
		require.Equal(t, domain.KindPermissionDenied, domain.KindOf(err))
	})
}

func TestTOTPVerifyCodeWindow(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	clk := &fakeClock{t: now}
	svc := &TOTPService{Store: st, Activity: newActivityService(st), Issuer: "tallyauth", Now: clk.Now}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "tallyauth",
		AccountName: "alice@example.com",
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	secret := key.Secret()

	t.Run("current step accepted", func(t *testing.T) {
		require.True(t, svc.VerifyCode(secret, codeAt(t, secret, now)))
	})

	t.Run("adjacent steps accepted", func(t *testing.T) {
		require.True(t, svc.VerifyCode(secret, codeAt(t, secret, now.Add(-totpPeriod*time.Second))))
		require.True(t, svc.VerifyCode(secret, codeAt(t, secret, now.Add(totpPeriod*time.Second))))
	})

	t.Run("distant steps rejected", func(t *testing.T) {
		// The window ends exactly at the adjacent step; two steps out
		// is the first rejected code on either side.
		require.False(t, svc.VerifyCode(secret, codeAt(t, secret, now.Add(-2*totpPeriod*time.Second))))
		require.False(t, svc.VerifyCode(secret, codeAt(t, secret, now.Add(2*totpPeriod*time.Second))))
	})

	t.Run("malformed codes rejected before validation", func(t *testing.T) {
		require.False(t, svc.VerifyCode(secret, ""))
		require.False(t, svc.VerifyCode(secret, "12345"))
		require.False(t, svc.VerifyCode(secret, "1234567"))
		require.False(t, svc.VerifyCode(secret, "12a456"))
	})
}

func TestTOTPDisable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p := seedUser(t, st, "alice", "pw-irrelevant-here", domain.RoleUser)

	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := &TOTPService{Store: st, Activity: newActivityService(st), Issuer: "tallyauth", Now: clk.Now}

	enrollment, err := svc.GenerateSecret(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Enable(ctx, p.ID, codeAt(t, enrollment.Secret, clk.Now())))

	require.NoError(t, svc.Disable(ctx, p.ID))

	got, err := st.Profiles().GetProfileByID(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.TwoFactorEnabled)
	require.Nil(t, got.TwoFactorSecret)

	// Disabling is recorded loudly.
	entries := queryActivity(t, st, domain.ActivityFilter{AccountID: p.ID, Type: domain.ActivitySettingsChanged})
	require.Len(t, entries, 2)

	severities := []domain.Severity{entries[0].Severity, entries[1].Severity}
	require.Contains(t, severities, domain.SeverityWarning)
	require.Contains(t, severities, domain.SeverityInfo)
}
