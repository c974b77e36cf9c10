package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestParser_Parse(t *testing.T) {
	parser := NewParser("secret")
	valid := Claims{
		Name: "Dispatch",
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "90000001",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	principal, err := parser.Parse(sign(t, "secret", valid))
	require.NoError(t, err)
	assert.Equal(t, Principal{Subject: "90000001", Name: "Dispatch", Role: "operator"}, principal)

	_, err = parser.Parse(sign(t, "other", valid))
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = parser.Parse(sign(t, "secret", expired))
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry := valid
	noExpiry.ExpiresAt = nil
	_, err = parser.Parse(sign(t, "secret", noExpiry))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = parser.Parse("  ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
