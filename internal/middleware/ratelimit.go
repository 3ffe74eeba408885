package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/studio-s/auth-service/pkg/logger"
	"github.com/studio-s/auth-service/pkg/response"
)

// WindowStore counts hits per key within a fixed window. Incr returns
// the count after this hit and the time until the window resets.
type WindowStore interface {
	Incr(key string, window time.Duration) (count int64, reset time.Duration, err error)
	// Decr undoes one hit, used when successful requests are not
	// counted against the limit.
	Decr(key string) error
}

type windowEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryWindowStore keeps windows in process memory. Counts are lost on
// restart, which only makes the limiter briefly more permissive.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
}

func NewMemoryWindowStore() *MemoryWindowStore {
	s := &MemoryWindowStore{entries: make(map[string]*windowEntry)}
	go s.cleanup()
	return s
}

func (s *MemoryWindowStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, time.Until(e.resetAt), nil
}

func (s *MemoryWindowStore) Decr(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.count > 0 {
		e.count--
	}
	return nil
}

// cleanup drops windows that ended more than 3 minutes ago.
func (s *MemoryWindowStore) cleanup() {
	for {
		time.Sleep(3 * time.Minute)
		s.mu.Lock()
		now := time.Now()
		for key, e := range s.entries {
			if now.Sub(e.resetAt) > 3*time.Minute {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}

// RedisWindowStore shares windows across instances.
type RedisWindowStore struct {
	client *redis.Client
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	ctx := context.Background()

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

func (s *RedisWindowStore) Decr(key string) error {
	return s.client.Decr(context.Background(), key).Err()
}

// RateLimitConfig describes one fixed-window limit.
type RateLimitConfig struct {
	// Max hits per window per client IP.
	Max int
	// Window length.
	Window time.Duration
	// KeyPrefix separates independent limits sharing one store.
	KeyPrefix string
	// SkipSuccessful refunds hits for responses below 400, so only
	// failed attempts count. Used for credential endpoints.
	SkipSuccessful bool
	// Skip disables the limit for matching requests.
	Skip func(c *gin.Context) bool
	// Message returned with 429 responses.
	Message string
}

// RateLimit enforces a fixed-window limit keyed by client IP. On store
// failure the request is allowed through; availability wins over
// strictness here.
func RateLimit(store WindowStore, cfg RateLimitConfig) gin.HandlerFunc {
	message := cfg.Message
	if message == "" {
		message = "Too many requests, please try again later"
	}
	return func(c *gin.Context) {
		if cfg.Skip != nil && cfg.Skip(c) {
			c.Next()
			return
		}

		key := cfg.KeyPrefix + ":" + c.ClientIP()
		count, reset, err := store.Incr(key, cfg.Window)
		if err != nil {
			logger.Error().Err(err).Str("key", key).Msg("rate limit store unavailable")
			c.Next()
			return
		}

		if count > int64(cfg.Max) {
			c.Header("Retry-After", strconv.Itoa(int(reset.Seconds())+1))
			response.TooManyRequests(c, message)
			c.Abort()
			return
		}

		c.Next()

		if cfg.SkipSuccessful && c.Writer.Status() < 400 {
			if err := store.Decr(key); err != nil {
				logger.Error().Err(err).Str("key", key).Msg("rate limit refund failed")
			}
		}
	}
}
