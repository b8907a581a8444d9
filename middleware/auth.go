package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"crowpro-api/helper"
	"crowpro-api/models"
	"crowpro-api/services"
)

const (
	AccessCookie  = "access"
	RefreshCookie = "refresh"

	userKey        = "current_user"
	accessTokenKey = "access_token"
)

// TokenVerifier resolves a raw access token to the user it was issued to.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*models.User, *services.AccessClaims, error)
}

// ExtractToken reads the bearer token from the Authorization header, falling
// back to the access cookie.
func ExtractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		scheme, token, found := strings.Cut(authHeader, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if cookie, err := c.Cookie(AccessCookie); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware rejects the request unless it carries a valid access token.
func AuthMiddleware(verifier TokenVerifier, h *helper.HTTPHelper) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			h.SendErrorFrom(c, models.ErrTokenMissing)
			c.Abort()
			return
		}

		user, _, err := verifier.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			h.SendErrorFrom(c, err)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Set(accessTokenKey, token)

		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through otherwise.
func OptionalAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if user, _, err := verifier.VerifyAccess(c.Request.Context(), token); err == nil {
				c.Set(userKey, user)
				c.Set(accessTokenKey, token)
			}
		}

		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func AccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}
