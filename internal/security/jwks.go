package security

import (
	"encoding/base64"
	"math/big"
)

// JWK is a single RSA public key in RFC 7517 form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the published key set. The gateway's Tier-1 verifier consumes
// this document; it never sees the private key.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKS returns the public key set for this provider's signing key.
func (p *KeyProvider) JWKS() JWKS {
	pub := p.Public()
	return JWKS{
		Keys: []JWK{
			{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: p.keyID,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}
