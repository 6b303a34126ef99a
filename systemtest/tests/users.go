package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessdesk/credpool/internal/api/http/dto"
)

func TestUserAdmin(t *testing.T, router *gin.Engine) {
	// Login as the seeded admin
	adminLogin := dto.LoginRequest{Username: "admin", Password: "changeme"}
	rr := doJSON(router, "POST", "/api/v1/auth/login", adminLogin)
	require.Equal(t, http.StatusOK, rr.Code)

	var adminResp dto.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &adminResp))

	t.Run("me", func(t *testing.T) {
		token := registerAndLogin(t, router, "meuser")
		rr := doJSONWithAuth(router, "GET", "/api/v1/me", nil, token)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.UserResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "meuser", resp.Username)
		assert.Equal(t, "user", resp.Role)
		assert.False(t, resp.CreatedAt.IsZero())
	})

	t.Run("list users as admin", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/v1/users", nil, adminResp.Token)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListUsersResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.GreaterOrEqual(t, resp.Total, int64(1))
		assert.Equal(t, 1, resp.Page)
		assert.Equal(t, 20, resp.PageSize)
		assert.NotEmpty(t, resp.Users)
	})

	t.Run("list users with pagination", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/v1/users?page=1&page_size=2", nil, adminResp.Token)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListUsersResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Page)
		assert.Equal(t, 2, resp.PageSize)
		assert.LessOrEqual(t, len(resp.Users), 2)
	})

	t.Run("list users far past the end", func(t *testing.T) {
		// A huge page number must come back as an empty page, not an error
		rr := doJSONWithAuth(router, "GET", "/api/v1/users?page=9000000000&page_size=20", nil, adminResp.Token)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListUsersResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Empty(t, resp.Users)
		assert.GreaterOrEqual(t, resp.Total, int64(1))
	})

	t.Run("list users 403 for non-admin", func(t *testing.T) {
		token := registerAndLogin(t, router, "regularuser")
		rr := doJSONWithAuth(router, "GET", "/api/v1/users", nil, token)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("list users 401 without token", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/v1/users", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("delete user as admin", func(t *testing.T) {
		token := registerAndLogin(t, router, "deleteuser")

		rr := doJSONWithAuth(router, "GET", "/api/v1/me", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)
		var me dto.UserResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))

		rr = doJSONWithAuth(router, "DELETE", "/api/v1/users/"+me.ID, nil, adminResp.Token)
		require.Equal(t, http.StatusNoContent, rr.Code)

		// Login fails after deletion
		rr = doJSON(router, "POST", "/api/v1/auth/login", dto.LoginRequest{Username: "deleteuser", Password: "password123"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("delete user 403 for non-admin", func(t *testing.T) {
		token := registerAndLogin(t, router, "nodeleteuser")
		rr := doJSONWithAuth(router, "GET", "/api/v1/me", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)
		var me dto.UserResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))

		rr = doJSONWithAuth(router, "DELETE", "/api/v1/users/"+me.ID, nil, token)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
