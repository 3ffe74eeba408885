package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func testKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block)), key
}

func TestLoadKeyProvider_InlinePEM(t *testing.T) {
	pemStr, key := testKeyPEM(t)

	kp, err := LoadKeyProvider(pemStr, "test-kid")
	if err != nil {
		t.Fatalf("LoadKeyProvider() error = %v", err)
	}

	if kp.Private().N.Cmp(key.N) != 0 {
		t.Error("loaded key does not match the PEM input")
	}
	if kp.KeyID() != "test-kid" {
		t.Errorf("KeyID() = %q", kp.KeyID())
	}
}

func TestLoadKeyProvider_FilePath(t *testing.T) {
	pemStr, _ := testKeyPEM(t)
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(pemStr), 0600); err != nil {
		t.Fatal(err)
	}

	kp, err := LoadKeyProvider(path, "file-kid")
	if err != nil {
		t.Fatalf("LoadKeyProvider() error = %v", err)
	}
	if kp.Public() == nil {
		t.Error("expected a public key")
	}
}

func TestLoadKeyProvider_PKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	if _, err := LoadKeyProvider(pemStr, "pkcs8-kid"); err != nil {
		t.Fatalf("LoadKeyProvider() error = %v", err)
	}
}

func TestLoadKeyProvider_EmptyGeneratesDevKey(t *testing.T) {
	kp, err := LoadKeyProvider("", "dev-kid")
	if err != nil {
		t.Fatalf("LoadKeyProvider() error = %v", err)
	}
	if kp.Private() == nil {
		t.Fatal("expected a generated key")
	}
	if kp.Private().N.BitLen() != devKeyBits {
		t.Errorf("dev key size = %d bits, expected %d", kp.Private().N.BitLen(), devKeyBits)
	}
}

func TestLoadKeyProvider_InvalidPEM(t *testing.T) {
	if _, err := LoadKeyProvider("-----BEGIN GARBAGE-----\nabc\n-----END GARBAGE-----", "kid"); err == nil {
		t.Error("expected error for invalid PEM")
	}
}

func TestJWKS_Document(t *testing.T) {
	kp, err := LoadKeyProvider("", "jwks-kid")
	if err != nil {
		t.Fatal(err)
	}

	doc := kp.JWKS()
	if len(doc.Keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(doc.Keys))
	}

	jwk := doc.Keys[0]
	if jwk.Kty != "RSA" || jwk.Alg != "RS256" || jwk.Use != "sig" {
		t.Errorf("unexpected key metadata: %+v", jwk)
	}
	if jwk.Kid != "jwks-kid" {
		t.Errorf("kid = %q", jwk.Kid)
	}

	// The modulus/exponent must reconstruct the public key.
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		t.Fatalf("modulus is not base64url: %v", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		t.Fatalf("exponent is not base64url: %v", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Cmp(kp.Public().N) != 0 {
		t.Error("modulus mismatch")
	}
	if int(e.Int64()) != kp.Public().E {
		t.Error("exponent mismatch")
	}
}
