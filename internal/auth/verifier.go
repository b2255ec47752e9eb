package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"logiflow/internal/config"
	pkgerrors "logiflow/pkg/errors"
)

// Claims is the identity attached to a realtime connection.
type Claims struct {
	Subject string
	Role    string
	ZoneID  string
}

// Verifier checks a bearer token and extracts its claims.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

type jwtVerifier struct {
	secret []byte
}

// NewVerifier builds an HMAC verifier from the base64-encoded secret in
// the configuration.
func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required")
	}
	secret, err := base64.StdEncoding.DecodeString(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("auth.jwt_secret is not valid base64: %w", err)
	}
	return &jwtVerifier{secret: secret}, nil
}

func (v *jwtVerifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, pkgerrors.ErrUnauthorized.WithDetail("message", "missing token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, pkgerrors.ErrUnauthorized.WithCause(err)
	}
	if !token.Valid {
		return nil, pkgerrors.ErrUnauthorized.WithDetail("message", "invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, pkgerrors.ErrUnauthorized.WithDetail("message", "malformed claims")
	}

	subject, _ := mapClaims.GetSubject()
	if subject == "" {
		return nil, pkgerrors.ErrUnauthorized.WithDetail("message", "token has no subject")
	}

	claims := &Claims{Subject: subject}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	if zone, ok := mapClaims["zone_id"].(string); ok {
		claims.ZoneID = zone
	}
	return claims, nil
}

// TokenFromRequest extracts the bearer token from an HTTP request. The
// query parameter wins over the Authorization header, which wins over
// the access_token cookie. Browser WebSocket clients cannot set headers,
// hence the query parameter escape hatch.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
	}

	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}

	return ""
}
