package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessdesk/credpool/internal/auth"
	"github.com/accessdesk/credpool/internal/users"
)

const testSecret = "middleware-test-secret"

func setupJWTRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/protected", JWTAuth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString("user_id"),
			"role":    c.GetString("role"),
		})
	})
	return r
}

func TestJWTAuthMissingHeader(t *testing.T) {
	r := setupJWTRouter(testSecret)

	req, _ := http.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthMalformedHeader(t *testing.T) {
	r := setupJWTRouter(testSecret)

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Token abcdef")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthGarbageToken(t *testing.T) {
	r := setupJWTRouter(testSecret)

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthWrongSecret(t *testing.T) {
	token, err := auth.GenerateToken(auth.Config{JWTSecret: "other-secret", TokenExpiry: time.Hour}, "uid-1", "alice", users.RoleUser)
	require.NoError(t, err)

	r := setupJWTRouter(testSecret)

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthSetsIdentity(t *testing.T) {
	token, err := auth.GenerateToken(auth.Config{JWTSecret: testSecret, TokenExpiry: time.Hour}, "uid-1", "alice", users.RoleUser)
	require.NoError(t, err)

	r := setupJWTRouter(testSecret)

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uid-1")
	assert.Contains(t, w.Body.String(), users.RoleUser)
}

func setupRoleRouter(role string) *gin.Engine {
	r := gin.New()
	r.GET("/admin-only",
		func(c *gin.Context) { c.Set("role", role) },
		RequireRole(users.RoleAdmin),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}

func TestRequireRoleForbidden(t *testing.T) {
	r := setupRoleRouter(users.RoleUser)

	req, _ := http.NewRequest("GET", "/admin-only", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoleAllowed(t *testing.T) {
	r := setupRoleRouter(users.RoleAdmin)

	req, _ := http.NewRequest("GET", "/admin-only", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRoleMissingRole(t *testing.T) {
	r := gin.New()
	r.GET("/admin-only", RequireRole(users.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req, _ := http.NewRequest("GET", "/admin-only", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func setupAPIKeyRouter(apiKey string) *gin.Engine {
	r := gin.New()
	r.GET("/machine", APIKeyAuth(apiKey), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func TestAPIKeyAuthUnconfigured(t *testing.T) {
	r := setupAPIKeyRouter("")

	req, _ := http.NewRequest("GET", "/machine", nil)
	req.Header.Set("X-API-Key", "anything")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	r := setupAPIKeyRouter("right-key")

	req, _ := http.NewRequest("GET", "/machine", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthWrongKey(t *testing.T) {
	r := setupAPIKeyRouter("right-key")

	req, _ := http.NewRequest("GET", "/machine", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthRightKey(t *testing.T) {
	r := setupAPIKeyRouter("right-key")

	req, _ := http.NewRequest("GET", "/machine", nil)
	req.Header.Set("X-API-Key", "right-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
