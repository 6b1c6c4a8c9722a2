// Package auth verifies bearer tokens issued by the identity provider and
// carries the caller's identity through request contexts.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
)

var (
	ErrTokenExpired          = errors.New(errors.ErrCodeUnauthorized, "token expired")
	ErrTokenInvalidSignature = errors.New(errors.ErrCodeUnauthorized, "invalid token signature")
	ErrTokenInvalidIssuer    = errors.New(errors.ErrCodeUnauthorized, "invalid token issuer")
	ErrTokenInvalidAudience  = errors.New(errors.ErrCodeUnauthorized, "invalid token audience")
	ErrTokenMalformed        = errors.New(errors.ErrCodeUnauthorized, "malformed token")
	ErrJWKSRefreshFailed     = errors.New(errors.ErrCodeServiceUnavailable, "jwks refresh failed")
)

// Claims is the subset of token claims the application cares about.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Issuer    string
	ExpiresAt time.Time
}

// Verifier checks bearer tokens.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

type jwksCache struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
	url       string
	client    *http.Client
	logger    logging.Logger
	mu        sync.RWMutex
}

func (c *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %s", resp.Status)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range doc.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			c.logger.Warn("failed to decode jwks modulus", logging.String("kid", key.Kid), logging.Err(err))
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			c.logger.Warn("failed to decode jwks exponent", logging.String("kid", key.Kid), logging.Err(err))
			continue
		}
		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}
		keys[key.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	stale := time.Since(c.fetchedAt) > c.ttl
	c.mu.RUnlock()
	if ok && !stale {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		if ok {
			// Serve the stale key rather than failing every request while
			// the identity provider is down.
			return key, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "jwks refresh failed")
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrTokenInvalidSignature
	}
	return key, nil
}

type jwksVerifier struct {
	cfg    config.AuthConfig
	cache  *jwksCache
	logger logging.Logger
}

// NewVerifier builds a Verifier that validates RS256 tokens against the
// issuer's JWKS endpoint.
func NewVerifier(cfg config.AuthConfig, log logging.Logger) (Verifier, error) {
	if cfg.Issuer == "" || cfg.JWKSURL == "" {
		return nil, errors.InvalidParam("auth issuer and jwks_url are required")
	}
	ttl := cfg.JWKSCacheTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &jwksVerifier{
		cfg: cfg,
		cache: &jwksCache{
			url:    cfg.JWKSURL,
			ttl:    ttl,
			client: &http.Client{Timeout: 10 * time.Second},
			logger: log,
		},
		logger: log,
	}, nil
}

func (v *jwksVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, ErrTokenMalformed
	}
	kid, ok := unverified.Header["kid"].(string)
	if !ok {
		return nil, ErrTokenMalformed
	}

	key, err := v.cache.getKey(ctx, kid)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		if stdliberrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if stdliberrors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrTokenInvalidSignature
		}
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "token verification failed")
	}
	if !token.Valid {
		return nil, ErrTokenInvalidSignature
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	if iss, err := claims.GetIssuer(); err != nil || iss != v.cfg.Issuer {
		return nil, ErrTokenInvalidIssuer
	}
	if v.cfg.Audience != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			return nil, ErrTokenInvalidAudience
		}
		found := false
		for _, a := range aud {
			if a == v.cfg.Audience {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrTokenInvalidAudience
		}
	}

	result := &Claims{Issuer: v.cfg.Issuer}
	if sub, err := claims.GetSubject(); err == nil {
		result.Subject = sub
	}
	if result.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		result.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		result.Name = name
	}
	return result, nil
}
