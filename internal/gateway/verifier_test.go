package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studio-s/auth-service/internal/security"
)

const (
	testIssuer   = "studio-s-auth"
	testAudience = "studio-s-clients"
)

type jwksFixture struct {
	tokens  *security.TokenProvider
	server  *httptest.Server
	fetches *int64
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	kp, err := security.LoadKeyProvider("", "fixture-kid")
	if err != nil {
		t.Fatal(err)
	}
	tokens := security.NewTokenProvider(kp, testIssuer, testAudience, 15*time.Minute, time.Hour)

	var fetches int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		json.NewEncoder(w).Encode(kp.JWKS())
	}))
	t.Cleanup(server.Close)

	return &jwksFixture{tokens: tokens, server: server, fetches: &fetches}
}

func (f *jwksFixture) verifier() *Verifier {
	return NewVerifier(VerifierConfig{
		JWKSURL:  f.server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
}

func (f *jwksFixture) accessToken(t *testing.T) string {
	t.Helper()
	token, _, err := f.tokens.IssueAccess("user-1", "a@example.com", "therapist")
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestVerifier_ValidToken(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier()

	identity, err := v.Verify(f.accessToken(t))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.UserID != "user-1" {
		t.Errorf("UserID = %q", identity.UserID)
	}
	if identity.Email != "a@example.com" {
		t.Errorf("Email = %q", identity.Email)
	}
	if identity.Role != "therapist" {
		t.Errorf("Role = %q", identity.Role)
	}
}

func TestVerifier_CachesKeys(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier()

	for i := 0; i < 5; i++ {
		if _, err := v.Verify(f.accessToken(t)); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
	}
	if n := atomic.LoadInt64(f.fetches); n != 1 {
		t.Errorf("jwks fetches = %d, expected 1", n)
	}
}

func TestVerifier_RejectsGarbage(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier()

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := v.Verify(tok); !errors.Is(err, ErrTokenRejected) {
			t.Errorf("Verify(%q) error = %v, expected ErrTokenRejected", tok, err)
		}
	}
}

func TestVerifier_RejectsHMAC(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier()

	claims := security.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrTokenRejected) {
		t.Errorf("HS256 token error = %v, expected ErrTokenRejected", err)
	}
}

func TestVerifier_RejectsAlgNone(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier()

	claims := security.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrTokenRejected) {
		t.Errorf(`alg "none" token error = %v, expected ErrTokenRejected`, err)
	}
}

func TestVerifier_RejectsForeignKey(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier()

	// Same issuer and audience, different signing key.
	otherKP, err := security.LoadKeyProvider("", "fixture-kid")
	if err != nil {
		t.Fatal(err)
	}
	other := security.NewTokenProvider(otherKP, testIssuer, testAudience, time.Minute, time.Hour)
	token, _, err := other.IssueAccess("user-1", "a@example.com", "therapist")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrTokenRejected) {
		t.Errorf("foreign-key token error = %v, expected ErrTokenRejected", err)
	}
}

func TestVerifier_KeysUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newJWKSFixture(t)
	v := NewVerifier(VerifierConfig{
		JWKSURL:  server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})

	if _, err := v.Verify(f.accessToken(t)); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("error = %v, expected ErrKeyUnavailable", err)
	}
}

func TestVerifier_StaleCacheFallback(t *testing.T) {
	f := newJWKSFixture(t)
	v := NewVerifier(VerifierConfig{
		JWKSURL:  f.server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
		CacheTTL: time.Millisecond,
	})

	token := f.accessToken(t)
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("initial Verify() error = %v", err)
	}

	// The auth service goes down and the cache goes stale. Verification
	// keeps working on the last known keys.
	f.server.Close()
	time.Sleep(5 * time.Millisecond)

	if _, err := v.Verify(token); err != nil {
		t.Errorf("Verify() with stale cache error = %v", err)
	}
}

func TestVerifier_RefreshThrottled(t *testing.T) {
	var fetches int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newJWKSFixture(t)
	v := NewVerifier(VerifierConfig{
		JWKSURL:        server.URL,
		Issuer:         testIssuer,
		Audience:       testAudience,
		FetchPerMinute: 1,
	})

	for i := 0; i < 5; i++ {
		v.Verify(f.accessToken(t))
	}
	if n := atomic.LoadInt64(&fetches); n > 1 {
		t.Errorf("jwks fetches = %d, throttle should allow at most 1", n)
	}
}
