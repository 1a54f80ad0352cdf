package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	tok, err := SignJWT("s3cret", "user-1", 5)
	require.NoError(t, err)

	claims, err := ParseJWT("s3cret", tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = ParseJWT("other", tok)
	assert.Error(t, err)
}

func TestExpiredJWT(t *testing.T) {
	tok, err := SignJWT("s3cret", "user-1", -1)
	require.NoError(t, err)
	_, err = ParseJWT("s3cret", tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRejectsOtherAlgorithms(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT("s3cret", tok)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "hunter22"))
	assert.False(t, CheckPassword(h, "hunter23"))
}
