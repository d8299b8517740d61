package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dial/internal/domain"
)

func newVerifier(t *testing.T, cfg Config) *Verifier {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	return v
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newVerifier(t, Config{Issuer: "dial", Audience: "web"})
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	token, err := v.Sign("42", exp, "web")
	require.NoError(t, err)

	ident, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("42"), ident.ID)
	assert.True(t, exp.Equal(ident.ExpireAt))
}

func TestVerifyNumericID(t *testing.T) {
	v := newVerifier(t, Config{})
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  1001,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	ident, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("1001"), ident.ID)
}

func TestVerifyRejects(t *testing.T) {
	v := newVerifier(t, Config{Audience: "web"})
	other := newVerifier(t, Config{Secret: "other", Audience: "web"})

	expired, err := v.Sign("1", time.Now().Add(-time.Hour), "web")
	require.NoError(t, err)
	foreign, err := other.Sign("1", time.Now().Add(time.Hour), "web")
	require.NoError(t, err)
	wrongAud, err := v.Sign("1", time.Now().Add(time.Hour), "admin")
	require.NoError(t, err)
	noID, err := v.Sign("", time.Now().Add(time.Hour), "web")
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id": "1", "aud": "web", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)

	for name, token := range map[string]string{
		"expired":   expired,
		"signature": foreign,
		"audience":  wrongAud,
		"empty id":  noID,
		"alg none":  none,
		"garbage":   "not.a.jwt",
	} {
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestNewVerifierRejectsNonHMAC(t *testing.T) {
	_, err := NewVerifier(Config{Secret: "s", Algorithm: "RS256"})
	assert.Error(t, err)
	_, err = NewVerifier(Config{})
	assert.Error(t, err)
}
