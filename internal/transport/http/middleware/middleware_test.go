package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docinsight/internal/pkg/jwtutil"
)

type fakeAuth struct {
	valid string
}

func (f fakeAuth) Authenticate(_ context.Context, token string) (*jwtutil.Claims, error) {
	if token != f.valid {
		return nil, jwtutil.ErrInvalidToken
	}
	return &jwtutil.Claims{UserID: 7, Email: "ada@example.com"}, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
	seen    []string
}

func (f *fakeLimiter) Allow(_ context.Context, subject string) (bool, time.Duration, error) {
	f.seen = append(f.seen, subject)
	return f.allowed, 1500 * time.Millisecond, f.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		userID, _ := c.Get(ContextUserIDKey)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	r.GET("/x", handlers...)
	return r
}

func TestAuthJWTAcceptsBearerAndCookie(t *testing.T) {
	r := newRouter(AuthJWT(fakeAuth{valid: "good"}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":7`)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "good"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthPageRedirectsToLogin(t *testing.T) {
	r := newRouter(AuthPage(fakeAuth{valid: "good"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?tab=2", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fx%3Ftab%3D2", w.Header().Get("Location"))
}

func TestOptionalAuthNeverRejects(t *testing.T) {
	r := newRouter(OptionalAuth(fakeAuth{valid: "good"}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":null`)
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	r := newRouter(AuthJWT(fakeAuth{valid: "good"}), RateLimit(limiter, zap.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, []string{"user:7"}, limiter.seen)
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	r := newRouter(RateLimit(limiter, zap.NewNop()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, limiter.seen, 1)
	assert.Contains(t, limiter.seen[0], "ip:")
}

func TestRecoveryAnswers500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()), Logger(zap.NewNop()))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type countingRecorder struct {
	started int
	path    string
	status  int
}

func (c *countingRecorder) StartRequest() { c.started++ }

func (c *countingRecorder) FinishRequest(_ string, path string, status int, _ time.Duration) {
	c.path, c.status = path, status
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	rec := &countingRecorder{}
	r := gin.New()
	r.Use(Metrics(rec))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, 1, rec.started)
	assert.Equal(t, "/items/:id", rec.path)
	assert.Equal(t, http.StatusNoContent, rec.status)
}
