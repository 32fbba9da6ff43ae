package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"

	"github.com/md-rashed-zaman/photobook/libs/auth"
)

type TokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	// JWKS is empty for symmetric signers.
	JWKS() []auth.JWK
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) (TokenSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("JWT_SECRET must be at least 16 characters")
	}
	return &hs256Signer{secret: secret}, nil
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWKS() []auth.JWK {
	return nil
}

type rs256Signer struct {
	key *rsa.PrivateKey
	kid string
	jwk auth.JWK
}

// NewRS256Signer parses a PKCS#1 or PKCS#8 PEM key. An empty kid is derived from the key.
func NewRS256Signer(pemBytes []byte, kid string) (TokenSigner, error) {
	key, err := parseRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return newRS256Signer(key, kid), nil
}

func newRS256Signer(key *rsa.PrivateKey, kid string) *rs256Signer {
	if kid == "" {
		kid = auth.KeyID(&key.PublicKey)
	}
	return &rs256Signer{key: key, kid: kid, jwk: auth.PublicJWK(&key.PublicKey, kid)}
}

func (s *rs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignRS256(claims, s.key, s.kid)
}

func (s *rs256Signer) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if header.Alg != "RS256" || (header.Kid != "" && header.Kid != s.kid) {
		return nil, auth.ErrInvalidToken
	}
	return auth.VerifyRS256(token, &s.key.PublicKey)
}

func (s *rs256Signer) JWKS() []auth.JWK {
	return []auth.JWK{s.jwk}
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("unsupported private key")
}
