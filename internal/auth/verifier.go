package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
)

const DefaultTokenTTL = 30 * 24 * time.Hour

// Verifier validates the bearer credentials presented during the websocket
// handshake and on the HTTP upload endpoints. Tokens are HS256-signed with a
// shared secret; the subject claim carries the user id.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the authenticated user id.
// Malformed, wrong-algorithm and expired tokens are all rejected.
func (v *Verifier) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperrors.TokenExpired()
		}
		return "", apperrors.InvalidToken("Invalid token").WithCause(err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", apperrors.InvalidToken("Token has no subject")
	}

	return claims.Subject, nil
}

// Sign issues a token for userID. The credential layer that owns login and
// refresh flows uses the same claims shape; the gateway only needs this for
// tooling and tests.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
