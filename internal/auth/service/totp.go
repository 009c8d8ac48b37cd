package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/tallystack/tallyauth/internal/auth/domain"
	"github.com/tallystack/tallyauth/internal/auth/store"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20 // 160-bit secret, base32 encoded
	totpCodeLength = 6
)

// Enrollment is the material handed back when a 2FA enrollment starts. The
// secret stays "pending" until Enable verifies a code against it.
type Enrollment struct {
	Secret string // base32
	URI    string // otpauth:// provisioning URI for authenticator apps
}

// TOTPService implements time-based one-time-password enrollment and
// verification (RFC 6238: 6 digits, 30 second steps, SHA-1).
type TOTPService struct {
	Store    store.Store
	Activity *ActivityService
	Issuer   string

	Now func() time.Time
}

func (s *TOTPService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// GenerateSecret starts an enrollment for the account. Re-running it before
// Enable replaces the pending secret; running it while 2FA is already
// enabled is an error (disable first).
func (s *TOTPService) GenerateSecret(ctx context.Context, accountID string) (Enrollment, error) {
	p, err := s.Store.Profiles().GetProfileByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Enrollment{}, domain.ErrProfileNotFound()
		}
		return Enrollment{}, fmt.Errorf("failed to load profile: %w", err)
	}
	if p.TwoFactorEnabled {
		return Enrollment{}, domain.ErrPermissionDenied("two-factor authentication is already enabled")
	}

	label := p.Email
	if label == "" {
		label = p.Username
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: label,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	if err := s.Store.Profiles().SetTwoFactorSecret(ctx, accountID, key.Secret()); err != nil {
		return Enrollment{}, fmt.Errorf("failed to store pending secret: %w", err)
	}

	return Enrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// VerifyCode checks a submitted code against a secret, accepting the
// current 30 second step and one step either side for clock drift.
func (s *TOTPService) VerifyCode(secret, code string) bool {
	if len(code) != totpCodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}

	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Enable confirms a pending enrollment: the submitted code must validate
// against the pending secret before the flag flips.
func (s *TOTPService) Enable(ctx context.Context, accountID, code string) error {
	p, err := s.Store.Profiles().GetProfileByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrProfileNotFound()
		}
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if p.TwoFactorEnabled {
		return domain.ErrPermissionDenied("two-factor authentication is already enabled")
	}
	if p.TwoFactorSecret == nil || *p.TwoFactorSecret == "" {
		return domain.ErrPermissionDenied("no pending enrollment; generate a secret first")
	}

	if !s.VerifyCode(*p.TwoFactorSecret, code) {
		return domain.ErrInvalidTwoFactorCode()
	}

	if err := s.Store.Profiles().EnableTwoFactor(ctx, accountID); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   accountID,
		Username:    p.Username,
		Type:        domain.ActivitySettingsChanged,
		Description: "two-factor authentication enabled",
	})
	return nil
}

// Disable turns 2FA off and discards the secret. It requires no code; the
// caller already holds an authenticated session. The audit entry is written
// at warning severity because disabling 2FA weakens the account.
func (s *TOTPService) Disable(ctx context.Context, accountID string) error {
	p, err := s.Store.Profiles().GetProfileByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrProfileNotFound()
		}
		return fmt.Errorf("failed to load profile: %w", err)
	}

	if err := s.Store.Profiles().DisableTwoFactor(ctx, accountID); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	s.Activity.Record(ctx, domain.ActivityLogEntry{
		AccountID:   accountID,
		Username:    p.Username,
		Type:        domain.ActivitySettingsChanged,
		Severity:    domain.SeverityWarning,
		Description: "two-factor authentication disabled",
	})
	return nil
}
