package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logiflow/internal/config"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testVerifier(t *testing.T) Verifier {
	t.Helper()
	v, err := NewVerifier(config.AuthConfig{
		JWTSecret: base64.StdEncoding.EncodeToString(testSecret),
	})
	require.NoError(t, err)
	return v
}

func signToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	v := testVerifier(t)

	signed := signToken(t, jwt.MapClaims{
		"sub":     "user-17",
		"role":    "courier",
		"zone_id": "north",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	claims, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-17", claims.Subject)
	assert.Equal(t, "courier", claims.Role)
	assert.Equal(t, "north", claims.ZoneID)
}

func TestVerify_OptionalClaimsMayBeAbsent(t *testing.T) {
	v := testVerifier(t)

	signed := signToken(t, jwt.MapClaims{
		"sub": "user-17",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	claims, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-17", claims.Subject)
	assert.Empty(t, claims.Role)
	assert.Empty(t, claims.ZoneID)
}

func TestVerify_WrongSecret(t *testing.T) {
	v := testVerifier(t)

	signed := signToken(t, jwt.MapClaims{
		"sub": "user-17",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, []byte("another-secret-another-secret-00"))

	_, err := v.Verify(signed)
	assert.Error(t, err)
}

func TestVerify_ExpiredToken(t *testing.T) {
	v := testVerifier(t)

	signed := signToken(t, jwt.MapClaims{
		"sub": "user-17",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	_, err := v.Verify(signed)
	assert.Error(t, err)
}

func TestVerify_MissingSubject(t *testing.T) {
	v := testVerifier(t)

	signed := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	_, err := v.Verify(signed)
	assert.Error(t, err)
}

func TestVerify_EmptyToken(t *testing.T) {
	v := testVerifier(t)

	_, err := v.Verify("")
	assert.Error(t, err)
}

func TestNewVerifier_RejectsInvalidBase64(t *testing.T) {
	_, err := NewVerifier(config.AuthConfig{JWTSecret: "not-base64!!"})
	assert.Error(t, err)
}

func TestTokenFromRequest_Priority(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	assert.Equal(t, "from-query", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	assert.Equal(t, "from-header", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, TokenFromRequest(req))
}
