package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalid covers malformed, forged, or otherwise unusable tokens.
	ErrInvalid = errors.New("jwtx: invalid token")
	// ErrExpired reports a token past its expiry (or not yet valid).
	ErrExpired = errors.New("jwtx: token expired")
	// ErrTypeMismatch reports an access token offered where a refresh token
	// was required, or vice versa.
	ErrTypeMismatch = errors.New("jwtx: token type mismatch")
)

// Codec signs and verifies tokens with a server-held symmetric key (HS256).
// Construct one per service instance; the key never leaves it.
type Codec struct {
	secret []byte
	issuer string
}

func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwtx: signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Codec{secret: secret, issuer: issuer}, nil
}

// Issuer returns the issuer claim this codec stamps and enforces.
func (c *Codec) Issuer() string { return c.issuer }

// Sign produces a compact HS256-signed token for the given claims.
func (c *Codec) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw, checks the signature, expiry, issuer, and type tag,
// and returns the decoded claims. The three failure classes are distinct
// so callers can choose retry-with-refresh vs. force-re-login:
//
//   - ErrExpired for exp/nbf violations
//   - ErrTypeMismatch for a wrong "typ" claim
//   - ErrInvalid for everything else (malformed, bad signature, wrong alg)
func (c *Codec) Verify(raw string, want TokenType) (Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}

	if claims.TokenType != want {
		return Claims{}, ErrTypeMismatch
	}

	return claims, nil
}
