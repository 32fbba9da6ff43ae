package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Leeway tolerates clock skew between the issuer and this process.
const Leeway = 30 * time.Second

// Claims carried by access tokens. Role is informational only; admin checks re-read
// the role from the profile store.
type Claims struct {
	Sub   string `json:"sub"`
	Iss   string `json:"iss,omitempty"`
	Aud   string `json:"aud,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
}

func (c Claims) Expired(now time.Time) bool {
	return c.Exp > 0 && now.Add(-Leeway).Unix() > c.Exp
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

// compact is a decoded JWS in compact serialization.
type compact struct {
	header    Header
	payload   string
	signing   string
	signature []byte
}

func parseCompact(token string) (*compact, error) {
	h, p, s, ok := cut3(token)
	if !ok {
		return nil, ErrInvalidToken
	}
	rawHeader, err := base64.RawURLEncoding.DecodeString(h)
	if err != nil {
		return nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidToken
	}
	c := &compact{payload: p, signing: h + "." + p, signature: sig}
	if err := json.Unmarshal(rawHeader, &c.header); err != nil {
		return nil, ErrInvalidToken
	}
	return c, nil
}

func cut3(token string) (string, string, string, bool) {
	h, rest, ok := strings.Cut(token, ".")
	if !ok {
		return "", "", "", false
	}
	p, s, ok := strings.Cut(rest, ".")
	if !ok || strings.Contains(s, ".") {
		return "", "", "", false
	}
	return h, p, s, true
}

// claims decodes the payload and rejects tokens without a subject or past expiry.
func (c *compact) claims() (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(c.payload)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Sub == "" || claims.Expired(time.Now()) {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func ParseHeader(token string) (*Header, error) {
	c, err := parseCompact(token)
	if err != nil {
		return nil, err
	}
	return &c.header, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	signing, err := signingInput(Header{Alg: "HS256", Typ: "JWT"}, claims)
	if err != nil {
		return "", err
	}
	return signing + "." + base64.RawURLEncoding.EncodeToString(hs256(signing, secret)), nil
}

// ParseAndVerifyHS256 accepts only tokens whose header names HS256.
func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	c, err := parseCompact(token)
	if err != nil {
		return nil, err
	}
	if c.header.Alg != "HS256" || !hmac.Equal(c.signature, hs256(c.signing, secret)) {
		return nil, ErrInvalidToken
	}
	return c.claims()
}

func SignRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	signing, err := signingInput(Header{Alg: "RS256", Typ: "JWT", Kid: kid}, claims)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(signing))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return signing + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyRS256 accepts only tokens whose header names RS256.
func VerifyRS256(token string, pub *rsa.PublicKey) (*Claims, error) {
	c, err := parseCompact(token)
	if err != nil {
		return nil, err
	}
	if c.header.Alg != "RS256" || pub == nil {
		return nil, ErrInvalidToken
	}
	digest := sha256.Sum256([]byte(c.signing))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], c.signature); err != nil {
		return nil, ErrInvalidToken
	}
	return c.claims()
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func signingInput(header Header, claims Claims) (string, error) {
	h, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	p, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(h) + "." + enc.EncodeToString(p), nil
}

func hs256(data, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return mac.Sum(nil)
}
