package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	token, err := GenerateJWT("s3cret", 42)
	require.NoError(t, err)

	userID, err := ValidateJWT("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	token, err := GenerateJWT("s3cret", 42)
	require.NoError(t, err)

	_, err = ValidateJWT("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateJWT_Expired(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ValidateJWT("s3cret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateJWT_NonNumericSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "luke", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ValidateJWT("s3cret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
