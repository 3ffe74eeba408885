package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/pkg/logger"
	"github.com/studio-s/auth-service/pkg/response"
)

// GatewayKeyHeader carries the pre-shared secret the gateway injects on
// every proxied request. Backends refuse traffic without it.
const GatewayKeyHeader = "X-Gateway-Key"

// GatewayTrust enforces that requests arrived through the API gateway.
// With no secret configured the service fails closed: better to refuse
// all traffic than to accept direct, unverified requests.
func GatewayTrust(secret string) gin.HandlerFunc {
	if secret == "" {
		logger.Error().Msg("gateway secret not configured, refusing all proxied traffic")
	}
	return func(c *gin.Context) {
		if secret == "" {
			response.ServiceUnavailable(c, "Service trust not configured")
			c.Abort()
			return
		}
		presented := c.GetHeader(GatewayKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			logger.Warn().
				Str("ip", c.ClientIP()).
				Str("path", c.Request.URL.Path).
				Msg("request without valid gateway key rejected")
			response.Unauthorized(c, "Request not from API Gateway")
			c.Abort()
			return
		}
		c.Next()
	}
}
