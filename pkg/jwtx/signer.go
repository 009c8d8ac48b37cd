package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs session tokens with an Ed25519 key. Keys are ephemeral per
// process: a restart invalidates outstanding tokens, which matches the
// session semantics (consumers re-bootstrap from the cache-then-reconcile
// path anyway).
type Signer struct {
	key ed25519.PrivateKey
	pub ed25519.PublicKey
	kid string
}

// NewEphemeralSigner generates a fresh Ed25519 keypair.
func NewEphemeralSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to generate Ed25519 key: %w", err)
	}
	return &Signer{key: priv, pub: pub, kid: NewJTI()}, nil
}

func (s *Signer) KID() string { return s.kid }

// Sign takes claims and turns them into a signed JWT string.
func (s *Signer) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verifier returns a verifier for tokens signed by this Signer.
func (s *Signer) Verifier(issuer string) *Verifier {
	return &Verifier{pub: s.pub, issuer: issuer}
}
