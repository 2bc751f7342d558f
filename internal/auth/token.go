package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collab-service/internal/collab"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by collaboration tokens. Issuers in the wild put the user id
// under "id", "user_id" or "sub"; all three are accepted.
type Claims struct {
	AccountID string `json:"id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identifier returns the first non-empty of user_id, id and sub.
func (c Claims) Identifier() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.AccountID != "":
		return c.AccountID
	default:
		return c.Subject
	}
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Identifier() == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// Verify implements collab.TokenVerifier.
func (v *Verifier) Verify(tokenString string) (collab.Identity, error) {
	claims, err := v.Parse(tokenString)
	if err != nil {
		return collab.Identity{}, err
	}
	return collab.Identity{UserID: claims.Identifier(), Name: claims.Name}, nil
}

// Issue signs a token for userID valid for ttl. Used by tooling and tests;
// production tokens come from the account service.
func (v *Verifier) Issue(userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: userID,
		Name:      name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
