// Package session mints and verifies the signed, time-bounded session
// credential carried by the dashboard after a successful sign-in.
package session

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kelo-finance/kelo-auth/identity"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"
)

// TTL is the fixed session lifetime. Expiry is always createdAt + TTL.
const TTL = 7 * 24 * time.Hour

// MinSecretBytes is the minimum length of the configured signing secret.
const MinSecretBytes = 32

const signingKeyInfo = "kelo-auth session signing v1"

// Credential is the decoded session record. The signature covers every
// field, so a credential that verifies is exactly what was issued.
type Credential struct {
	UserID        string
	Email         string
	Name          string
	WalletAddress string
	WalletID      string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	User          identity.ExternalIdentity
}

type credentialClaims struct {
	UserID        string                    `json:"userId"`
	Email         string                    `json:"email"`
	Name          string                    `json:"name"`
	WalletAddress string                    `json:"walletAddress,omitempty"`
	WalletID      string                    `json:"smartWalletId,omitempty"`
	User          identity.ExternalIdentity `json:"user"`
	jwtlib.RegisteredClaims
}

// Issuer signs and verifies session credentials with an HMAC key derived
// from the configured secret.
type Issuer struct {
	key     []byte
	nowTime func() time.Time
	log     zerolog.Logger
}

// IssuerOption modifies an Issuer.
type IssuerOption func(*Issuer)

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.nowTime = now }
}

// WithLogger sets the issuer's logger.
func WithLogger(log zerolog.Logger) IssuerOption {
	return func(i *Issuer) { i.log = log }
}

// NewIssuer derives the signing key from secret. Secrets shorter than
// MinSecretBytes are rejected here, not at first use.
func NewIssuer(secret []byte, options ...IssuerOption) (*Issuer, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("[NewIssuer] signing secret must be at least %d bytes, got %d", MinSecretBytes, len(secret))
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(signingKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("[NewIssuer] derive signing key: %w", err)
	}

	issuer := &Issuer{
		key:     key,
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(issuer)
	}
	return issuer, nil
}

// Issue signs a credential for user. Wallet linkage is optional; empty
// strings mean no wallet has been provisioned yet.
func (i *Issuer) Issue(user identity.ExternalIdentity, walletAddress, walletID string) (string, error) {
	now := i.nowTime()
	expiresAt := now.Add(TTL)

	claims := credentialClaims{
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		WalletAddress: walletAddress,
		WalletID:      walletID,
		User:          user,
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("[Issuer.Issue] sign credential: %w", err)
	}
	return signed, nil
}

// Verify decodes and checks a credential. Invalid input of any kind
// (forged signature, malformed structure, expired) is a normal case and
// resolves to nil, never to an error.
func (i *Issuer) Verify(rawToken string) *Credential {
	if rawToken == "" {
		return nil
	}

	parsed, err := jwtlib.ParseWithClaims(rawToken, &credentialClaims{},
		func(t *jwtlib.Token) (any, error) { return i.key, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(i.nowTime),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		i.log.Debug().Err(err).Msg("session credential rejected")
		return nil
	}

	claims, ok := parsed.Claims.(*credentialClaims)
	if !ok || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil
	}

	return &Credential{
		UserID:        claims.UserID,
		Email:         claims.Email,
		Name:          claims.Name,
		WalletAddress: claims.WalletAddress,
		WalletID:      claims.WalletID,
		CreatedAt:     claims.IssuedAt.Time,
		ExpiresAt:     claims.ExpiresAt.Time,
		User:          claims.User,
	}
}
