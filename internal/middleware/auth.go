package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/security"
	"github.com/studio-s/auth-service/pkg/response"
)

const (
	ContextUserID   = "user_id"
	ContextEmail    = "email"
	ContextRole     = "role"
	ContextIssuedAt = "token_iat"
)

// Identity headers injected by the gateway after Tier-1 verification.
const (
	UserIDHeader = "X-User-Id"
	EmailHeader  = "X-User-Email"
	RoleHeader   = "X-User-Role"
)

// AuthRequired verifies a Bearer access token against the service's own
// signing key. Used on endpoints the auth service protects itself.
func AuthRequired(tokens *security.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := tokens.VerifyAccess(parts[1])
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		if claims.IssuedAt != nil {
			c.Set(ContextIssuedAt, claims.IssuedAt.Time)
		}

		c.Next()
	}
}

// Identity reads the identity headers the gateway injected. It runs
// after GatewayTrust, so the headers are trustworthy by construction.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextEmail, c.GetHeader(EmailHeader))
		c.Set(ContextRole, c.GetHeader(RoleHeader))

		c.Next()
	}
}

// RequireRoles allows the request through only when the caller's role
// is one of the given roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "Insufficient role")
		c.Abort()
	}
}

// GetUserID gets the current user ID from context.
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(string)
	}
	return ""
}

// GetEmail gets the current user email from context.
func GetEmail(c *gin.Context) string {
	if email, exists := c.Get(ContextEmail); exists {
		return email.(string)
	}
	return ""
}

// GetRole gets the current user role from context.
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}

// GetIssuedAt returns the issue time of the verified access token.
func GetIssuedAt(c *gin.Context) (time.Time, bool) {
	if iat, exists := c.Get(ContextIssuedAt); exists {
		t, ok := iat.(time.Time)
		return t, ok
	}
	return time.Time{}, false
}
