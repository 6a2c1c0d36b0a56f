package token

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/questline/core/internal/pkg/kind"
)

const (
	jwksCacheTTL  = time.Hour
	jwksFetchWait = 10 * time.Second
)

// JWKSCache fetches RSA public keys from a JWKS endpoint and caches them by
// kid for an hour. An unknown kid triggers one refetch before failing, so a
// key rotation does not strand in-flight logins.
type JWKSCache struct {
	url    string
	client *http.Client
	cache  *gocache.Cache
	mu     sync.Mutex
}

func NewJWKSCache(url string) *JWKSCache {
	return &JWKSCache{
		url:    url,
		client: &http.Client{Timeout: jwksFetchWait},
		cache:  gocache.New(jwksCacheTTL, 10*time.Minute),
	}
}

// Key returns the public key for kid, refetching the document once when the
// kid is not cached.
func (j *JWKSCache) Key(kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, kind.New(kind.AuthSignature, "token missing kid header")
	}
	if cached, ok := j.cache.Get(kid); ok {
		return cached.(*rsa.PublicKey), nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if cached, ok := j.cache.Get(kid); ok {
		return cached.(*rsa.PublicKey), nil
	}
	if err := j.refresh(); err != nil {
		return nil, err
	}
	if cached, ok := j.cache.Get(kid); ok {
		return cached.(*rsa.PublicKey), nil
	}
	return nil, kind.Newf(kind.AuthSignature, "unknown signing key %q", kid)
}

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (j *JWKSCache) refresh() error {
	resp, err := j.client.Get(j.url)
	if err != nil {
		return kind.Wrap(kind.DependencyDown, "jwks fetch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return kind.Wrap(kind.DependencyDown, "jwks fetch failed",
			fmt.Errorf("jwks endpoint returned %d", resp.StatusCode))
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return kind.Wrap(kind.DependencyDown, "jwks document malformed", err)
	}
	for _, key := range doc.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(key)
		if err != nil {
			continue
		}
		j.cache.Set(key.Kid, pub, jwksCacheTTL)
	}
	return nil
}

func parseRSAKey(key jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
