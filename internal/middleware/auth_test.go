package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studio-s/auth-service/internal/security"
)

func testTokens(t *testing.T) *security.TokenProvider {
	t.Helper()
	kp, err := security.LoadKeyProvider("", "test-kid")
	if err != nil {
		t.Fatal(err)
	}
	return security.NewTokenProvider(kp, "studio-s-auth", "studio-s-clients", 15*time.Minute, time.Hour)
}

func protectedRouter(tokens *security.TokenProvider) *gin.Engine {
	router := gin.New()
	router.Use(AuthRequired(tokens))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"user_id": GetUserID(c),
			"email":   GetEmail(c),
			"role":    GetRole(c),
		})
	})
	return router
}

func TestAuthRequired_NoHeader(t *testing.T) {
	router := protectedRouter(testTokens(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401", w.Code)
	}
}

func TestAuthRequired_InvalidFormat(t *testing.T) {
	router := protectedRouter(testTokens(t))

	for _, header := range []string{"Basic abc", "Bearer", "token-without-scheme"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", header)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, expected 401", header, w.Code)
		}
	}
}

func TestAuthRequired_InvalidToken(t *testing.T) {
	router := protectedRouter(testTokens(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401", w.Code)
	}
}

func TestAuthRequired_ValidToken(t *testing.T) {
	tokens := testTokens(t)
	router := protectedRouter(tokens)

	token, _, err := tokens.IssueAccess("user-1", "a@example.com", "owner")
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200, body: %s", w.Code, w.Body.String())
	}
}

func TestIdentity_RequiresUserHeader(t *testing.T) {
	router := gin.New()
	router.Use(Identity())
	router.GET("/resource", func(c *gin.Context) {
		c.JSON(200, gin.H{"user_id": GetUserID(c)})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/resource", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401 without identity headers", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/resource", nil)
	req.Header.Set(UserIDHeader, "user-9")
	req.Header.Set(EmailHeader, "u@example.com")
	req.Header.Set(RoleHeader, "manager")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200 with identity headers", w.Code)
	}
}

func TestRequireRoles(t *testing.T) {
	router := gin.New()
	router.Use(Identity(), RequireRoles("owner", "manager"))
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	cases := []struct {
		role string
		want int
	}{
		{"owner", http.StatusOK},
		{"manager", http.StatusOK},
		{"therapist", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/admin", nil)
		req.Header.Set(UserIDHeader, "user-1")
		if tc.role != "" {
			req.Header.Set(RoleHeader, tc.role)
		}
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("role %q: status = %d, expected %d", tc.role, w.Code, tc.want)
		}
	}
}
