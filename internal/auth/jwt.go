// Package auth verifies the bearer tokens clients present when opening a
// gateway connection.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for expired, malformed, or unsigned tokens.
	// Token failure is fatal to the connection attempt.
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// JWTService signs and verifies HS256 tokens. The subject claim carries the
// user id.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService builds a JWT helper with the given secret and token expiry.
// A zero expiry issues tokens that never expire.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry}
}

// Claims carries the token payload.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Generate issues a signed token for the given user id.
func (s *JWTService) Generate(userID, username string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}

	claims := Claims{
		Username: strings.TrimSpace(username),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token and returns the user id it carries.
func (s *JWTService) Verify(token string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// BearerToken extracts a token from an Authorization header value, accepting
// both "Bearer <token>" and a bare token.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return header
}
