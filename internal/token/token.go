package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedToken is returned when a token is not three base64url JSON segments.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when the HMAC does not match the signing input.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when the exp claim lies in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("signing secret is not configured")
)

// DefaultTTL is the lifetime of issued tokens unless configured otherwise.
const DefaultTTL = 24 * time.Hour

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

var fixedHeader = header{Alg: "HS256", Typ: "JWT"}

// Claims is the payload of a signed token.
type Claims struct {
	Username  string `json:"username"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

var b64 = base64.RawURLEncoding

// Encode signs claims with HMAC-SHA256 and returns header.payload.signature.
func Encode(claims Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}

	headerJSON, err := json.Marshal(fixedHeader)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}

	signingInput := b64.EncodeToString(headerJSON) + "." + b64.EncodeToString(claimsJSON)
	return signingInput + "." + b64.EncodeToString(sign(signingInput, secret)), nil
}

// Decode verifies the token signature and expiry against now and returns its claims.
// The alg header is never consulted; HS256 is the only accepted algorithm.
func Decode(tok string, secret []byte, now time.Time) (Claims, error) {
	if len(secret) == 0 {
		return Claims{}, ErrMissingSecret
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return Claims{}, ErrMalformedToken
	}

	signature, err := b64.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}
	if !hmac.Equal(signature, sign(parts[0]+"."+parts[1], secret)) {
		return Claims{}, ErrInvalidSignature
	}

	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: claims: %v", ErrMalformedToken, err)
	}

	if claims.ExpiresAt != 0 && claims.ExpiresAt < now.Unix() {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

func sign(input string, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

// Codec issues and verifies tokens with a fixed secret and lifetime.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a Codec. A zero ttl falls back to DefaultTTL; an empty secret
// yields a codec whose every call fails with ErrMissingSecret.
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret: []byte(strings.TrimSpace(secret)),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the codec time source.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Configured reports whether a signing secret is present.
func (c *Codec) Configured() bool {
	return len(c.secret) > 0
}

// Issue returns a token for username valid for the codec ttl.
func (c *Codec) Issue(username string) (string, Claims, error) {
	now := c.now()
	claims := Claims{
		Username:  username,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(c.ttl).Unix(),
	}
	tok, err := Encode(claims, c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return tok, claims, nil
}

// Verify decodes tok and checks its signature and expiry.
func (c *Codec) Verify(tok string) (Claims, error) {
	return Decode(tok, c.secret, c.now())
}
