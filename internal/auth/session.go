// internal/auth/session.go
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the HTTP-only cookie carrying the session token. The
// WebSocket upgrade reads the same cookie.
const CookieName = "token"

// Token lifetimes: 12 h on login, 18 h right after registration.
const (
	LoginTTL    = 12 * time.Hour
	RegisterTTL = 18 * time.Hour
)

var secret []byte

// Init sets the HMAC signing secret. Must be called once at startup.
func Init(s string) error {
	if s == "" {
		return fmt.Errorf("empty JWT secret")
	}
	secret = []byte(s)
	return nil
}

// CreateJWT creates a signed token carrying the user id, expiring after ttl.
func CreateJWT(userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// AuthenticateJWT verifies a token string and returns the user id.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	userID, ok := claims["userId"].(string)
	if !ok {
		return "", fmt.Errorf("missing userId in jwt")
	}
	return userID, nil
}
