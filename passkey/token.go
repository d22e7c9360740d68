package passkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/semaphore-aa-vote/util"
)

const (
	// TokenIssuer is the iss claim of the session tokens.
	TokenIssuer = "semaphore-aa-vote"
	// DefaultTokenTTL is used when the configuration does not set one.
	DefaultTokenTTL = 12 * time.Hour
)

// ErrInvalidToken is returned for any token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid session token")

// Tokens issues and verifies the EdDSA signed session tokens given to the
// users after a passkey login.
type Tokens struct {
	key ed25519.PrivateKey
	ttl time.Duration
	now func() time.Time
}

// NewTokens creates the token issuer. seedHex is a hex encoded Ed25519 seed;
// when empty a random key is used.
func NewTokens(seedHex string, ttl time.Duration) (*Tokens, error) {
	var key ed25519.PrivateKey
	if seedHex == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate token key: %w", err)
		}
		key = priv
	} else {
		seed, err := hex.DecodeString(util.TrimHex(seedHex))
		if err != nil {
			return nil, fmt.Errorf("decode token seed: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("token seed must be %d bytes", ed25519.SeedSize)
		}
		key = ed25519.NewKeyFromSeed(seed)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{key: key, ttl: ttl, now: time.Now}, nil
}

// IssueToken returns a signed token for the user.
func (t *Tokens) IssueToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ParseToken verifies the token and returns the user ID it was issued for.
func (t *Tokens) ParseToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.key.Public(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
