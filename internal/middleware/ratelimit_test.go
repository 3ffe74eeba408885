package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func limitedRouter(store WindowStore, cfg RateLimitConfig, status int) *gin.Engine {
	router := gin.New()
	router.Use(RateLimit(store, cfg))
	router.POST("/login", func(c *gin.Context) {
		c.JSON(status, gin.H{"status": "ok"})
	})
	return router
}

func hit(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/login", nil)
	req.RemoteAddr = ip + ":12345"
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	router := limitedRouter(NewMemoryWindowStore(), RateLimitConfig{
		Max: 5, Window: time.Minute, KeyPrefix: "auth",
	}, 200)

	for i := 0; i < 5; i++ {
		if w := hit(router, "192.168.1.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, expected 200", i+1, w.Code)
		}
	}
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	router := limitedRouter(NewMemoryWindowStore(), RateLimitConfig{
		Max: 2, Window: time.Minute, KeyPrefix: "auth",
	}, 200)

	hit(router, "10.0.0.1")
	hit(router, "10.0.0.1")
	w := hit(router, "10.0.0.1")

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, expected 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	router := limitedRouter(NewMemoryWindowStore(), RateLimitConfig{
		Max: 1, Window: time.Minute, KeyPrefix: "auth",
	}, 200)

	hit(router, "10.0.0.1")
	if w := hit(router, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("second hit from same IP: status = %d, expected 429", w.Code)
	}
	if w := hit(router, "10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("hit from other IP: status = %d, expected 200", w.Code)
	}
}

func TestRateLimit_SkipSuccessfulRefunds(t *testing.T) {
	// Successful logins never exhaust the window.
	router := limitedRouter(NewMemoryWindowStore(), RateLimitConfig{
		Max: 2, Window: time.Minute, KeyPrefix: "auth", SkipSuccessful: true,
	}, 200)

	for i := 0; i < 10; i++ {
		if w := hit(router, "10.0.0.3"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, expected 200", i+1, w.Code)
		}
	}
}

func TestRateLimit_SkipSuccessful_FailuresStillCount(t *testing.T) {
	router := limitedRouter(NewMemoryWindowStore(), RateLimitConfig{
		Max: 2, Window: time.Minute, KeyPrefix: "auth", SkipSuccessful: true,
	}, 401)

	hit(router, "10.0.0.4")
	hit(router, "10.0.0.4")
	if w := hit(router, "10.0.0.4"); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, expected 429 after failed attempts", w.Code)
	}
}

func TestRateLimit_SkipPredicate(t *testing.T) {
	router := limitedRouter(NewMemoryWindowStore(), RateLimitConfig{
		Max: 1, Window: time.Minute, KeyPrefix: "global",
		Skip: func(c *gin.Context) bool { return true },
	}, 200)

	for i := 0; i < 5; i++ {
		if w := hit(router, "10.0.0.5"); w.Code != http.StatusOK {
			t.Fatalf("skipped limiter must not block, got %d", w.Code)
		}
	}
}

func TestRateLimit_WindowResets(t *testing.T) {
	store := NewMemoryWindowStore()

	if count, _, _ := store.Incr("k", 10*time.Millisecond); count != 1 {
		t.Fatalf("count = %d, expected 1", count)
	}
	store.Incr("k", 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	count, _, _ := store.Incr("k", 10*time.Millisecond)
	if count != 1 {
		t.Errorf("count after window reset = %d, expected 1", count)
	}
}

func TestRedisWindowStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisWindowStore(client)

	for i := int64(1); i <= 3; i++ {
		count, reset, err := store.Incr("auth:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if count != i {
			t.Errorf("count = %d, expected %d", count, i)
		}
		if reset <= 0 {
			t.Error("reset should be positive")
		}
	}

	if err := store.Decr("auth:1.2.3.4"); err != nil {
		t.Fatalf("Decr() error = %v", err)
	}
	count, _, _ := store.Incr("auth:1.2.3.4", time.Minute)
	if count != 3 {
		t.Errorf("count after refund = %d, expected 3", count)
	}
}

func TestRateLimit_StoreFailureAllows(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisWindowStore(client)
	mr.Close()

	router := limitedRouter(store, RateLimitConfig{
		Max: 1, Window: time.Minute, KeyPrefix: "auth",
	}, 200)

	if w := hit(router, "10.0.0.6"); w.Code != http.StatusOK {
		t.Errorf("store failure must not block requests, got %d", w.Code)
	}
}
