package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appuser "github.com/dealdeskhq/dealdesk/internal/application/user"
	domainuser "github.com/dealdeskhq/dealdesk/internal/domain/user"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockVerifier struct {
	claims *auth.Claims
	err    error
	token  string
}

func (m *mockVerifier) Verify(_ context.Context, raw string) (*auth.Claims, error) {
	m.token = raw
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

type mockUserService struct {
	appuser.Service
	user *domainuser.User
	err  error
}

func (m *mockUserService) EnsureUser(_ context.Context, claims *auth.Claims) (*domainuser.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

// ---------------------------------------------------------------------------
// RequestID
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		assert.NotEmpty(t, c.GetString(ContextRequestID))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDHonorsClientHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func authRouter(verifier auth.Verifier, users appuser.Service) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.Use(Auth(verifier, users, logging.NewNopLogger()))
	r.GET("/me", func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": string(id.UserID), "email": id.Email})
	})
	return r
}

func TestAuthAttachesIdentity(t *testing.T) {
	verifier := &mockVerifier{claims: &auth.Claims{Subject: "sub-1", Email: "agent@example.com"}}
	users := &mockUserService{user: &domainuser.User{
		ID:    common.UserID("user-1"),
		Email: "agent@example.com",
		Name:  "Dana Agent",
	}}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok-abc")
	w := httptest.NewRecorder()
	authRouter(verifier, users).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-abc", verifier.token)
	assert.Contains(t, w.Body.String(), `"user_id":"user-1"`)
	assert.Contains(t, w.Body.String(), `"email":"agent@example.com"`)
}

func TestAuthMissingHeader(t *testing.T) {
	w := httptest.NewRecorder()
	authRouter(&mockVerifier{}, &mockUserService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(errors.ErrCodeUnauthorized))
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestAuthMalformedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	authRouter(&mockVerifier{}, &mockUserService{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthInvalidToken(t *testing.T) {
	verifier := &mockVerifier{err: auth.ErrTokenExpired}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer expired")
	w := httptest.NewRecorder()
	authRouter(verifier, &mockUserService{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthProvisioningFailure(t *testing.T) {
	verifier := &mockVerifier{claims: &auth.Claims{Subject: "sub-1"}}
	users := &mockUserService{err: errors.Internal("db down")}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	authRouter(verifier, users).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

// ---------------------------------------------------------------------------
// RateLimit
// ---------------------------------------------------------------------------

func TestRateLimitBlocksBurstOverflow(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/", nil))
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), string(errors.ErrCodeTooManyRequests))
}

func TestRateLimitRefillsOverTime(t *testing.T) {
	limiter := &rateLimiter{
		cfg:     RateLimitConfig{RequestsPerSecond: 10, BurstSize: 1},
		buckets: make(map[string]*tokenBucket),
	}

	now := time.Now()
	assert.True(t, limiter.allow("10.0.0.1", now))
	assert.False(t, limiter.allow("10.0.0.1", now))
	assert.True(t, limiter.allow("10.0.0.1", now.Add(150*time.Millisecond)))
}

func TestRateLimitCleanupDropsIdleBuckets(t *testing.T) {
	limiter := &rateLimiter{
		cfg:     RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, CleanupInterval: time.Second},
		buckets: make(map[string]*tokenBucket),
	}
	now := time.Now()
	limiter.allow("10.0.0.1", now)
	limiter.cleanup(now.Add(2 * time.Second))

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Empty(t, limiter.buckets)
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.dealdesk.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.dealdesk.example"}

	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
