package jwtx

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := NewEphemeralSigner()
	require.NoError(t, err)
	require.NotEmpty(t, signer.KID())

	now := time.Now().UTC()
	claims := NewSessionClaims("acct-1", "alice", "admin", "tallyauth", DefaultSessionTTL, now)

	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := signer.Verifier("tallyauth").Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "acct-1", got.Subject)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "admin", got.Role)
	require.NotEmpty(t, got.ID)
}

func TestNewJTI(t *testing.T) {
	first := NewJTI()
	second := NewJTI()

	// 20 random bytes, base64url without padding
	require.Len(t, first, 27)
	require.NotEqual(t, first, second)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	signer, err := NewEphemeralSigner()
	require.NoError(t, err)

	claims := NewSessionClaims("acct-1", "alice", "user", "someone-else", DefaultSessionTTL, time.Now().UTC())
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = signer.Verifier("tallyauth").Verify(raw)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	signer, err := NewEphemeralSigner()
	require.NoError(t, err)

	issued := time.Now().UTC().Add(-2 * time.Hour)
	claims := NewSessionClaims("acct-1", "alice", "user", "tallyauth", time.Hour, issued)
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = signer.Verifier("tallyauth").Verify(raw)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	signer, err := NewEphemeralSigner()
	require.NoError(t, err)

	claims := NewSessionClaims("acct-1", "alice", "user", "tallyauth", DefaultSessionTTL, time.Now().UTC())
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	_, err = signer.Verifier("tallyauth").Verify(tampered)
	require.Error(t, err)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	signer, err := NewEphemeralSigner()
	require.NoError(t, err)
	other, err := NewEphemeralSigner()
	require.NoError(t, err)

	claims := NewSessionClaims("acct-1", "alice", "user", "tallyauth", DefaultSessionTTL, time.Now().UTC())
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = other.Verifier("tallyauth").Verify(raw)
	require.Error(t, err)
}

func TestClaimsValidateExpiry(t *testing.T) {
	c := NewSessionClaims("acct-1", "alice", "user", "tallyauth", time.Hour, time.Now().UTC().Add(time.Minute))
	require.ErrorIs(t, c.ValidateExpiry(), ErrNotYetValid)
}
