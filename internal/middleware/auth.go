package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/errs"
)

// Context keys for the verified identity in gin.Context.
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
	ContextKeyToken  = "token"
)

// TokenVerifier restores an identity from a bearer token. Revoked and
// expired tokens must fail.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// AuthMiddleware returns a Gin middleware that verifies the request's token
// and stores the identity for handlers. The token comes from the
// Authorization header, or from the "token" query parameter when the header
// is absent (browsers cannot set headers on a WebSocket upgrade).
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed authorization, expected: Bearer <token>",
			})
			return
		}

		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(errs.HTTPStatus(err), gin.H{
				"error": errs.Message(err),
			})
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyEmail, id.Email)
		c.Set(ContextKeyToken, token)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		token := c.Query("token")
		return token, token != ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetUserID returns uuid.Nil when the request was not authenticated.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

func GetToken(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}
