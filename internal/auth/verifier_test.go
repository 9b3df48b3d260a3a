package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chatapp/gateway-server-go/internal/errors"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier("test-secret")

	t.Run("round-trips a signed token", func(t *testing.T) {
		token, err := v.Sign("user-1", time.Hour)
		require.NoError(t, err)

		userID, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		token, err := v.Sign("user-1", -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeTokenExpired, apperrors.GetCode(err))
	})

	t.Run("rejects a malformed token", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
	})

	t.Run("rejects a token signed with another secret", func(t *testing.T) {
		other := NewVerifier("other-secret")
		token, err := other.Sign("user-1", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidToken, apperrors.GetCode(err))
	})

	t.Run("rejects a token without a subject", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
	})

	t.Run("rejects the none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
	})
}
