package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
)

// ErrInvalidKey is returned when PEM content or the key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

const devKeyBits = 2048

// KeyProvider holds the service signing key pair and its key id. It is
// built once at startup and read-only afterwards.
type KeyProvider struct {
	privateKey *rsa.PrivateKey
	keyID      string
}

// LoadKeyProvider parses an RSA private key from s, which may be inline
// PEM or a file path. An empty s generates an ephemeral dev key pair;
// callers must refuse that in production.
func LoadKeyProvider(s, keyID string) (*KeyProvider, error) {
	if strings.TrimSpace(s) == "" {
		key, err := rsa.GenerateKey(rand.Reader, devKeyBits)
		if err != nil {
			return nil, err
		}
		return &KeyProvider{privateKey: key, keyID: keyID}, nil
	}

	key, err := parsePrivateKey(s)
	if err != nil {
		return nil, err
	}
	return &KeyProvider{privateKey: key, keyID: keyID}, nil
}

// Private returns the RSA signing key.
func (p *KeyProvider) Private() *rsa.PrivateKey { return p.privateKey }

// Public returns the RSA verification key.
func (p *KeyProvider) Public() *rsa.PublicKey { return &p.privateKey.PublicKey }

// KeyID returns the kid published alongside the public key.
func (p *KeyProvider) KeyID() string { return p.keyID }

// loadPEM reads content from path if s does not look like inline PEM;
// otherwise returns s as bytes.
func loadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

func parsePrivateKey(s string) (*rsa.PrivateKey, error) {
	pemBytes, err := loadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrInvalidKey
		}
		return rsaKey, nil
	default:
		return nil, ErrInvalidKey
	}
}
