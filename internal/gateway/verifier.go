package gateway

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/studio-s/auth-service/internal/security"
	"github.com/studio-s/auth-service/pkg/logger"
)

var (
	ErrTokenRejected = errors.New("token rejected")
	// ErrKeyUnavailable means the key set could not be refreshed and no
	// cached copy exists. Distinct from rejection so callers can 503.
	ErrKeyUnavailable = errors.New("signing keys unavailable")
)

// Identity is what Tier-1 verification extracts from a valid access
// token. The proxy turns it into trusted headers.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Verifier checks access tokens at the edge against the auth service's
// published JWKS. Keys are cached; refreshes are de-duplicated and
// throttled so a storm of bad tokens cannot hammer the auth service.
type Verifier struct {
	jwksURL  string
	issuer   string
	audience string
	client   *http.Client
	cacheTTL time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	group   singleflight.Group
	limiter *rate.Limiter
}

type VerifierConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	// CacheTTL bounds how long fetched keys are trusted. Default 10m.
	CacheTTL time.Duration
	// FetchPerMinute bounds JWKS refreshes. Default 10.
	FetchPerMinute int
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	perMinute := cfg.FetchPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	return &Verifier{
		jwksURL:  cfg.JWKSURL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		client:   &http.Client{Timeout: 5 * time.Second},
		cacheTTL: cacheTTL,
		keys:     make(map[string]*rsa.PublicKey),
		limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

// Verify validates the access token and returns the caller's identity.
// Only RS256 signatures against a published key are accepted.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	claims := &security.AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyForToken,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, ErrKeyUnavailable) {
			return nil, ErrKeyUnavailable
		}
		return nil, ErrTokenRejected
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenRejected
	}
	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

func (v *Verifier) keyForToken(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, ErrTokenRejected
	}
	kid, _ := token.Header["kid"].(string)

	if key := v.cachedKey(kid, false); key != nil {
		return key, nil
	}

	// Unknown kid or stale cache: refresh once for all waiters.
	if _, err, _ := v.group.Do("jwks", v.refresh); err != nil {
		// A stale key beats no key when the auth service is down.
		if key := v.cachedKey(kid, true); key != nil {
			return key, nil
		}
		return nil, ErrKeyUnavailable
	}

	if key := v.cachedKey(kid, true); key != nil {
		return key, nil
	}
	return nil, ErrTokenRejected
}

// cachedKey returns the key for kid, or nil. With allowStale the cache
// TTL is ignored.
func (v *Verifier) cachedKey(kid string, allowStale bool) *rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !allowStale && time.Since(v.fetchedAt) > v.cacheTTL {
		return nil
	}
	return v.keys[kid]
}

func (v *Verifier) refresh() (interface{}, error) {
	if !v.limiter.Allow() {
		return nil, fmt.Errorf("jwks refresh rate exceeded")
	}

	resp, err := v.client.Get(v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var doc security.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		key, err := parseRSAPublicKey(jwk.N, jwk.E)
		if err != nil {
			logger.Warn().Err(err).Str("kid", jwk.Kid).Msg("skipping unparseable jwk")
			continue
		}
		keys[jwk.Kid] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks document contains no usable keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	logger.Debug().Int("keys", len(keys)).Msg("jwks refreshed")
	return nil, nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
