package gateway

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/middleware"
	"github.com/studio-s/auth-service/pkg/logger"
	"github.com/studio-s/auth-service/pkg/response"
)

// Proxy is the edge reverse proxy. Auth traffic passes through with the
// gateway key attached; resource traffic additionally requires a valid
// access token, which becomes trusted identity headers upstream.
type Proxy struct {
	verifier *Verifier
	secret   string
	auth     *httputil.ReverseProxy
	backend  *httputil.ReverseProxy
}

type ProxyConfig struct {
	AuthServiceURL string
	BackendURL     string
	Secret         string
	Verifier       *Verifier
}

func NewProxy(cfg ProxyConfig) (*Proxy, error) {
	authURL, err := url.Parse(cfg.AuthServiceURL)
	if err != nil {
		return nil, err
	}
	backendURL, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, err
	}
	return &Proxy{
		verifier: cfg.Verifier,
		secret:   cfg.Secret,
		auth:     newReverseProxy(authURL),
		backend:  newReverseProxy(backendURL),
	}, nil
}

func newReverseProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream unreachable")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"status":"error","message":"Upstream unavailable"}`))
	}
	return proxy
}

// AuthHandler forwards auth endpoints without token verification; the
// auth service owns its own checks.
func (p *Proxy) AuthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p.scrub(c.Request)
		c.Request.Header.Set(middleware.GatewayKeyHeader, p.secret)
		p.auth.ServeHTTP(c.Writer, c.Request)
	}
}

// BackendHandler verifies the access token and forwards the request
// with trusted identity headers.
func (p *Proxy) BackendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			response.Unauthorized(c, "Authorization header required")
			return
		}

		identity, err := p.verifier.Verify(token)
		if err != nil {
			if errors.Is(err, ErrKeyUnavailable) {
				response.ServiceUnavailable(c, "Verification keys unavailable")
				return
			}
			response.Unauthorized(c, "Invalid or expired token")
			return
		}

		p.scrub(c.Request)
		c.Request.Header.Set(middleware.GatewayKeyHeader, p.secret)
		c.Request.Header.Set(middleware.UserIDHeader, identity.UserID)
		c.Request.Header.Set(middleware.EmailHeader, identity.Email)
		c.Request.Header.Set(middleware.RoleHeader, identity.Role)

		p.backend.ServeHTTP(c.Writer, c.Request)
	}
}

// scrub removes identity and trust headers a client may have set
// itself. Only the gateway mints these.
func (p *Proxy) scrub(r *http.Request) {
	r.Header.Del(middleware.GatewayKeyHeader)
	r.Header.Del(middleware.UserIDHeader)
	r.Header.Del(middleware.EmailHeader)
	r.Header.Del(middleware.RoleHeader)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
