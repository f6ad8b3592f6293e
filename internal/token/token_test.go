package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("journal_test_secret_0123456789abcdef")

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	claims := Claims{Username: "alice", IssuedAt: now.Unix(), ExpiresAt: now.Add(time.Hour).Unix()}

	tok, err := Encode(claims, testSecret)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(tok, "."))
	assert.NotContains(t, tok, "=")

	got, err := Decode(tok, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, claims, got)
}

func TestEncodeUsesFixedHeader(t *testing.T) {
	tok, err := Encode(Claims{Username: "alice"}, testSecret)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(strings.Split(tok, ".")[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"HS256","typ":"JWT"}`, string(raw))
}

func TestDecodeRejectsTamperedPayload(t *testing.T) {
	now := time.Now()
	tok, err := Encode(Claims{Username: "alice", IssuedAt: now.Unix(), ExpiresAt: now.Add(time.Hour).Unix()}, testSecret)
	require.NoError(t, err)
	parts := strings.Split(tok, ".")

	forged, err := json.Marshal(Claims{Username: "mallory", IssuedAt: now.Unix(), ExpiresAt: now.Add(time.Hour).Unix()})
	require.NoError(t, err)

	cases := map[string]string{
		"swapped claims": parts[0] + "." + base64.RawURLEncoding.EncodeToString(forged) + "." + parts[2],
		"flipped byte":   parts[0] + "." + flipFirst(parts[1]) + "." + parts[2],
		"bad signature":  parts[0] + "." + parts[1] + "." + flipFirst(parts[2]),
		"wrong secret":   mustEncode(t, Claims{Username: "alice"}, []byte("another-secret")),
	}
	for name, candidate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(candidate, testSecret, now)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, tok := range []string{"", "abc", "a.b", "a.b.c.d"} {
		_, err := Decode(tok, testSecret, time.Now())
		assert.ErrorIs(t, err, ErrMalformedToken, tok)
	}

	// Correctly signed but the payload is not JSON.
	input := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`)) + "." + base64.RawURLEncoding.EncodeToString([]byte("not-json"))
	tok := input + "." + base64.RawURLEncoding.EncodeToString(sign(input, testSecret))
	_, err := Decode(tok, testSecret, time.Now())
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestDecodeExpired(t *testing.T) {
	now := time.Now()
	tok := mustEncode(t, Claims{Username: "alice", IssuedAt: now.Add(-2 * time.Hour).Unix(), ExpiresAt: now.Add(-time.Second).Unix()}, testSecret)

	_, err := Decode(tok, testSecret, now)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// exp equal to now is still valid.
	tok = mustEncode(t, Claims{Username: "alice", ExpiresAt: now.Unix()}, testSecret)
	_, err = Decode(tok, testSecret, now)
	assert.NoError(t, err)
}

func TestDecodeWithoutExpiry(t *testing.T) {
	tok := mustEncode(t, Claims{Username: "alice"}, testSecret)
	claims, err := Decode(tok, testSecret, time.Now().Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestMissingSecret(t *testing.T) {
	_, err := Encode(Claims{Username: "alice"}, nil)
	assert.ErrorIs(t, err, ErrMissingSecret)

	codec := NewCodec("   ", time.Hour)
	assert.False(t, codec.Configured())
	_, _, err = codec.Issue("alice")
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = codec.Verify("a.b.c")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestCodecIssueVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := NewCodec(string(testSecret), 0).WithClock(func() time.Time { return now })

	tok, claims, err := codec.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), claims.IssuedAt)
	assert.Equal(t, now.Add(DefaultTTL).Unix(), claims.ExpiresAt)

	got, err := codec.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, claims, got)

	codec.WithClock(func() time.Time { return now.Add(DefaultTTL + time.Second) })
	_, err = codec.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestInteropWithJWTLibrary(t *testing.T) {
	now := time.Now()
	tok := mustEncode(t, Claims{Username: "alice", IssuedAt: now.Unix(), ExpiresAt: now.Add(time.Hour).Unix()}, testSecret)

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (any, error) { return testSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "alice", mapClaims["username"])

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "bob",
		"iat":      now.Unix(),
		"exp":      now.Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	claims, err := Decode(signed, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
}

func mustEncode(t *testing.T, claims Claims, secret []byte) string {
	t.Helper()
	tok, err := Encode(claims, secret)
	require.NoError(t, err)
	return tok
}

func flipFirst(s string) string {
	if s[0] == 'A' {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}
