package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue("user-1", "Avery", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "Avery", id.Name)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue("user-1", "Avery", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("other").Issue("user-1", "Avery", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{AccountID: "user-1"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyUserIDClaims(t *testing.T) {
	secret := []byte("secret")
	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{"id", Claims{AccountID: "a"}, "a"},
		{"user_id", Claims{UserID: "b"}, "b"},
		{"sub", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "c"}}, "c"},
		{"user_id wins", Claims{AccountID: "a", UserID: "b", RegisteredClaims: jwt.RegisteredClaims{Subject: "c"}}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString(secret)
			require.NoError(t, err)

			id, err := NewVerifier("secret").Verify(token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.UserID)
		})
	}
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Name: "nobody"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
