// Package auth verifies identity-provider bearer tokens.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for every verification failure. Callers must
// not distinguish causes in responses.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Identity is the verified caller.
type Identity struct {
	UID    string         `json:"uid"`
	Email  string         `json:"email,omitempty"`
	Claims map[string]any `json:"-"`
}

// Verifier checks a bearer token and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Config holds verification key material and claim expectations.
type Config struct {
	// PublicKeys maps key id to RSA key for RS256 tokens.
	PublicKeys map[string]*rsa.PublicKey
	// HMACSecret enables HS256 tokens when non-empty.
	HMACSecret []byte
	Audience   string
	Issuer     string
	Leeway     time.Duration
}

// JWTVerifier validates RS256 and HS256 tokens locally. The RS256 key set
// can be replaced at runtime with SetPublicKeys.
type JWTVerifier struct {
	mu     sync.RWMutex
	keys   map[string]*rsa.PublicKey
	secret []byte
	opts   []jwt.ParserOption
	now    func() time.Time
}

// NewJWTVerifier creates a verifier. With no key material configured every
// token is rejected.
func NewJWTVerifier(cfg Config) *JWTVerifier {
	v := &JWTVerifier{
		secret: cfg.HMACSecret,
		now:    time.Now,
	}
	v.SetPublicKeys(cfg.PublicKeys)

	v.opts = []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	}
	if cfg.Leeway > 0 {
		v.opts = append(v.opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Audience != "" {
		v.opts = append(v.opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Issuer != "" {
		v.opts = append(v.opts, jwt.WithIssuer(cfg.Issuer))
	}
	return v
}

// SetPublicKeys replaces the RS256 key set.
func (v *JWTVerifier) SetPublicKeys(keys map[string]*rsa.PublicKey) {
	cp := make(map[string]*rsa.PublicKey, len(keys))
	for kid, key := range keys {
		cp[kid] = key
	}
	v.mu.Lock()
	v.keys = cp
	v.mu.Unlock()
}

func (v *JWTVerifier) publicKeys() map[string]*rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" || (len(v.publicKeys()) == 0 && len(v.secret) == 0) {
		return Identity{}, ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc, v.opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrUnauthorized
	}

	uid := stringClaim(claims, "sub")
	if uid == "" {
		uid = stringClaim(claims, "user_id")
	}
	if uid == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return Identity{
		UID:    uid,
		Email:  stringClaim(claims, "email"),
		Claims: map[string]any(claims),
	}, nil
}

func (v *JWTVerifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		keys := v.publicKeys()
		kid, _ := t.Header["kid"].(string)
		if key, ok := keys[kid]; ok {
			return key, nil
		}
		// A single configured key may verify tokens without a kid.
		if kid == "" && len(keys) == 1 {
			for _, key := range keys {
				return key, nil
			}
		}
		return nil, fmt.Errorf("unknown key id %q", kid)
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.secret, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}
