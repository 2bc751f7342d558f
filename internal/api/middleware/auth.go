package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"collab-service/internal/collab"
	"collab-service/internal/models"
)

const (
	identityKey = "identity"

	// InternalKeyHeader carries the shared secret of internal callers.
	InternalKeyHeader = "X-Internal-Key"
)

// Authenticator verifies handshake tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (collab.Identity, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
}

func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// RequireAuth accepts a bearer token or, for browser websocket clients that
// cannot set headers, a token query parameter.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "authorization token required",
			})
			return
		}

		identity, err := am.authenticator.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "invalid or expired token",
			})
			return
		}

		c.Set(identityKey, identity)
		c.Set("user_id", identity.UserID)
		c.Next()
	}
}

// GetIdentity returns the identity stored by RequireAuth.
func GetIdentity(c *gin.Context) (collab.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return collab.Identity{}, false
	}
	identity, ok := v.(collab.Identity)
	return identity, ok
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// InternalAuth guards endpoints called by other backend services. The header
// value is checked against a bcrypt hash; an empty hash rejects everything.
func InternalAuth(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(InternalKeyHeader)
		if keyHash == "" || key == "" ||
			bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    http.StatusUnauthorized,
				Message: "invalid internal key",
			})
			return
		}
		c.Next()
	}
}
