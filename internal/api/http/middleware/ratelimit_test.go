package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupLimitedRouter(limiter *RateLimiter, identify gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{}
	if identify != nil {
		handlers = append(handlers, identify)
	}
	handlers = append(handlers, limiter.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/limited", handlers...)
	return r
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	r := setupLimitedRouter(NewRateLimiter(1, 3), nil)

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/limited", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	r := setupLimitedRouter(NewRateLimiter(0.001, 2), nil)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("GET", "/limited", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	req, _ := http.NewRequest("GET", "/limited", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiterKeysByUser(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)

	user := "user-a"
	identify := func(c *gin.Context) { c.Set("user_id", user) }
	r := setupLimitedRouter(limiter, identify)

	req, _ := http.NewRequest("GET", "/limited", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Same user is out of budget
	req, _ = http.NewRequest("GET", "/limited", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different user gets a fresh bucket
	user = "user-b"
	req, _ = http.NewRequest("GET", "/limited", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterCleanupEvictsIdleEntries(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	limiter.get("stale")
	limiter.mu.Lock()
	limiter.entries["stale"].lastSeen = limiter.entries["stale"].lastSeen.Add(-2 * limiterIdleTTL)
	limiter.mu.Unlock()
	limiter.get("fresh")

	limiter.cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.entries, "stale")
	assert.Contains(t, limiter.entries, "fresh")
}
