package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/pkg/auth"
)

const IdentityKey = "identity"

// Authenticator resolves a bearer token to an active identity.
// *services.AuthService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// AuthMiddleware checks the Authorization header of REST calls.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return authenticate(authn, auth.ExtractTokenFromHeader)
}

// WSAuthMiddleware also accepts ?token=, browsers cannot set headers on
// the upgrade request.
func WSAuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return authenticate(authn, auth.ExtractToken)
}

func authenticate(authn Authenticator, extract func(*http.Request) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extract(c.Request)
		if err != nil {
			unauthorized(c, "missing or invalid token")
			return
		}

		identity, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": message})
}

// IdentityFrom returns the identity set by the auth middleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}

// MustIdentity panics when the route is not behind the auth middleware.
func MustIdentity(c *gin.Context) models.Identity {
	identity, ok := IdentityFrom(c)
	if !ok {
		panic("middleware: identity missing from context")
	}
	return identity
}
