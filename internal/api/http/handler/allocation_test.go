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
	"github.com/accessdesk/credpool/internal/pool"
)

const testOwnerID = "6b1e6a2f-55a7-4b6e-9d3a-8c2f4a6e1b05"

func init() {
	gin.SetMode(gin.TestMode)
}

// setupAllocationRouter stands in for the JWT middleware by injecting a fixed
// user id. The requests exercised here are rejected before the store is
// touched, so the service runs without a database.
func setupAllocationRouter(h *AllocationHandler) *gin.Engine {
	r := gin.New()
	identify := func(c *gin.Context) { c.Set("user_id", testOwnerID) }
	r.POST("/api/v1/allocations", identify, h.Allocate)
	r.GET("/api/v1/allocations/:id/reveal", identify, h.Reveal)
	r.POST("/api/v1/allocations/release", identify, h.Release)
	r.GET("/api/v1/pool/availability", identify, h.Availability)
	return r
}

func newAllocationHandler() *AllocationHandler {
	return NewAllocationHandler(pool.NewService(pool.NewStore(nil), nil, 0), nil)
}

func TestAllocateMissingIdentity(t *testing.T) {
	h := newAllocationHandler()
	r := gin.New()
	r.POST("/api/v1/allocations", h.Allocate)

	body, _ := json.Marshal(dto.AllocateRequest{Category: "wg", Quantity: 1})
	req, _ := http.NewRequest("POST", "/api/v1/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAllocateMalformedBody(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	req, _ := http.NewRequest("POST", "/api/v1/allocations", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAllocateMissingCategory(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	body, _ := json.Marshal(dto.AllocateRequest{Quantity: 1})
	req, _ := http.NewRequest("POST", "/api/v1/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAllocateBothRequestForms(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	body, _ := json.Marshal(dto.AllocateRequest{
		Category: "wg",
		Quantity: 1,
		Requests: []dto.CategorySlice{{Category: "ovpn", Quantity: 1}},
	})
	req, _ := http.NewRequest("POST", "/api/v1/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAllocateZeroQuantity(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	body, _ := json.Marshal(dto.AllocateRequest{Category: "wg", Quantity: 0})
	req, _ := http.NewRequest("POST", "/api/v1/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp["code"])
}

func TestAllocateNegativeQuantity(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	body, _ := json.Marshal(dto.AllocateRequest{Category: "wg", Quantity: -3})
	req, _ := http.NewRequest("POST", "/api/v1/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAllocateBatchTooLarge(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	body, _ := json.Marshal(dto.AllocateRequest{Category: "wg", Quantity: pool.DefaultMaxBatch + 1})
	req, _ := http.NewRequest("POST", "/api/v1/allocations", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "batch_too_large", resp["code"])
}

func TestRevealMalformedID(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	req, _ := http.NewRequest("GET", "/api/v1/allocations/not-a-uuid/reveal", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReleaseMissingIDs(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	req, _ := http.NewRequest("POST", "/api/v1/allocations/release", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReleaseAllInvalidIDs(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	body, _ := json.Marshal(dto.ReleaseRequest{CredentialIDs: []string{"zzz", "also-bad"}})
	req, _ := http.NewRequest("POST", "/api/v1/allocations/release", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.ReleaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Empty(t, resp.Released)
	require.Len(t, resp.Failed, 2)
	for _, failure := range resp.Failed {
		assert.Equal(t, "invalid_id", failure.Reason)
	}
}

func TestAvailabilityMissingCategory(t *testing.T) {
	h := newAllocationHandler()
	r := setupAllocationRouter(h)

	req, _ := http.NewRequest("GET", "/api/v1/pool/availability", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
