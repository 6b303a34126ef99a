package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessdesk/credpool/internal/api/http/dto"
	"github.com/accessdesk/credpool/internal/inventory"
	"github.com/accessdesk/credpool/internal/pool"
)

func newAdminHandler() *AdminHandler {
	poolService := pool.NewService(pool.NewStore(nil), nil, 0)
	inventoryService := inventory.NewService(nil, nil, nil)
	return NewAdminHandler(poolService, inventoryService, nil)
}

func TestImportCredentialsEmptyItems(t *testing.T) {
	h := newAdminHandler()
	r := gin.New()
	r.POST("/api/v1/admin/credentials/import", h.ImportCredentials)

	body, _ := json.Marshal(dto.ImportRequest{})
	req, _ := http.NewRequest("POST", "/api/v1/admin/credentials/import", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportCredentialsMissingSecret(t *testing.T) {
	h := newAdminHandler()
	r := gin.New()
	r.POST("/api/v1/admin/credentials/import", h.ImportCredentials)

	body, _ := json.Marshal(map[string]any{
		"items": []map[string]string{{"category": "wg"}},
	})
	req, _ := http.NewRequest("POST", "/api/v1/admin/credentials/import", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetireCredentialsMissingIDs(t *testing.T) {
	h := newAdminHandler()
	r := gin.New()
	r.POST("/api/v1/admin/credentials/retire", h.RetireCredentials)

	req, _ := http.NewRequest("POST", "/api/v1/admin/credentials/retire", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAllocateMissingOwner(t *testing.T) {
	h := newAdminHandler()
	r := gin.New()
	r.POST("/api/v1/admin/allocations", h.AllocateForOwner)

	body, _ := json.Marshal(dto.AdminAllocateRequest{Category: "wg", Quantity: 1})
	req, _ := http.NewRequest("POST", "/api/v1/admin/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAllocateInvalidOwner(t *testing.T) {
	h := newAdminHandler()
	r := gin.New()
	r.POST("/api/v1/admin/allocations", h.AllocateForOwner)

	body, _ := json.Marshal(dto.AdminAllocateRequest{OwnerID: "not-a-uuid", Category: "wg", Quantity: 1})
	req, _ := http.NewRequest("POST", "/api/v1/admin/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp["code"])
}

func TestListAuditEventsWithoutRecorder(t *testing.T) {
	h := newAdminHandler()
	r := gin.New()
	r.GET("/api/v1/admin/audit-events", h.ListAuditEvents)

	req, _ := http.NewRequest("GET", "/api/v1/admin/audit-events", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
