package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/security"
)

// JWKSHandler publishes the RSA public key set gateways verify against.
type JWKSHandler struct {
	keys *security.KeyProvider
}

func NewJWKSHandler(keys *security.KeyProvider) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// GetKeys serves the key set. Clients may cache it for up to an hour;
// key rollover keeps the old kid published until old tokens expire.
// GET /.well-known/jwks.json
func (h *JWKSHandler) GetKeys(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.JSON(http.StatusOK, h.keys.JWKS())
}
