package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rabbitdeck/backend/internal/audit"
	"github.com/rabbitdeck/backend/internal/auth"
	"github.com/rabbitdeck/backend/internal/domain"
)

// principalKey gin context key for the authenticated claims.
const principalKey = "principal"

// Authenticator gates routes on a valid bearer token. Missing or invalid
// credentials are 401; role checks layer on top with RequireAdministrator
// (403). The two statuses stay distinct so the frontend can tell "log in"
// from "you lack permission".
type Authenticator struct {
	jwtManager *auth.JWTManager
}

// NewAuthenticator creates the auth middleware
func NewAuthenticator(jwtManager *auth.JWTManager) *Authenticator {
	return &Authenticator{jwtManager: jwtManager}
}

// Middleware validates the bearer token and stores the claims on the context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or malformed Authorization header",
			})
			return
		}

		claims, err := a.jwtManager.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(principalKey, claims)
		c.Next()
	}
}

// RequireAdministrator rejects non-administrator principals with 403. Must
// run after Middleware.
func (a *Authenticator) RequireAdministrator() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := PrincipalFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required",
			})
			return
		}
		if claims.Role != domain.RoleAdministrator {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Administrator privilege required",
			})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated claims, or nil
func PrincipalFrom(c *gin.Context) *auth.Claims {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// RequestMeta copies best-effort request attribution (client IP, user agent)
// into the request context so the audit interceptor can pick it up without
// seeing the HTTP layer.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithRequestMeta(c.Request.Context(), audit.RequestMeta{
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
