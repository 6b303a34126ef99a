package tests

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessdesk/credpool/internal/api/http/dto"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestAllocationLifecycle(t *testing.T, router *gin.Engine, apiKey string) {
	seeded := seedStock(t, router, apiKey, "life-wg", 5)
	alice := registerAndLogin(t, router, "life-alice")
	bob := registerAndLogin(t, router, "life-bob")

	var granted []dto.CredentialResponse

	t.Run("allocate", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "life-wg", Quantity: 2}, alice)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.AllocationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 2, resp.Count)
		require.Len(t, resp.Credentials, 2)
		assert.NotEqual(t, resp.Credentials[0].ID, resp.Credentials[1].ID)
		for _, cred := range resp.Credentials {
			assert.Equal(t, "life-wg", cred.Category)
			assert.Equal(t, "assigned", cred.Status)
			assert.NotNil(t, cred.AssignedAt)
			assert.Contains(t, seeded, cred.ID)
		}
		granted = resp.Credentials
	})

	t.Run("list owned", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/v1/allocations", nil, alice)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AllocationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 2, resp.Count)

		// Bob holds nothing
		rr = doJSONWithAuth(router, "GET", "/api/v1/allocations", nil, bob)
		assert.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
	})

	t.Run("reveal", func(t *testing.T) {
		require.NotEmpty(t, granted)
		id := granted[0].ID

		rr := doJSONWithAuth(router, "GET", "/api/v1/allocations/"+id+"/reveal", nil, alice)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.RevealResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.ID)
		assert.True(t, strings.HasPrefix(resp.Secret, "life-wg-conf-"), "unexpected secret %q", resp.Secret)
	})

	t.Run("reveal hides other owners' credentials", func(t *testing.T) {
		require.NotEmpty(t, granted)

		rr := doJSONWithAuth(router, "GET", "/api/v1/allocations/"+granted[0].ID+"/reveal", nil, bob)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/v1/allocations/"+uuid.New().String()+"/reveal", nil, alice)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/v1/allocations/not-a-uuid/reveal", nil, alice)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("availability reflects assignment", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=life-wg", nil, alice)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, int64(3), resp.Available)
	})

	t.Run("release", func(t *testing.T) {
		require.Len(t, granted, 2)
		ids := []string{granted[0].ID, granted[1].ID}

		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations/release", dto.ReleaseRequest{CredentialIDs: ids}, alice)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ReleaseResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.ElementsMatch(t, ids, resp.Released)
		assert.Empty(t, resp.Failed)

		rr = doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=life-wg", nil, alice)
		require.Equal(t, http.StatusOK, rr.Code)
		var avail dto.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &avail))
		assert.Equal(t, int64(5), avail.Available)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		require.Len(t, granted, 2)
		ids := []string{granted[0].ID, granted[1].ID}

		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations/release", dto.ReleaseRequest{CredentialIDs: ids}, alice)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ReleaseResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.ElementsMatch(t, ids, resp.Released)
		assert.Empty(t, resp.Failed)
	})

	t.Run("release reports bad ids", func(t *testing.T) {
		body := dto.ReleaseRequest{CredentialIDs: []string{"not-a-uuid", uuid.New().String()}}
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations/release", body, alice)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ReleaseResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.OK)
		assert.Empty(t, resp.Released)
		require.Len(t, resp.Failed, 2)
		reasons := map[string]string{}
		for _, f := range resp.Failed {
			reasons[f.Reason] = f.ID
		}
		assert.Contains(t, reasons, "invalid_id")
		assert.Contains(t, reasons, "not_found")
	})

	t.Run("released stock is reallocatable", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "life-wg", Quantity: 5}, bob)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.AllocationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 5, resp.Count)

		ids := make([]string, 0, len(resp.Credentials))
		for _, cred := range resp.Credentials {
			ids = append(ids, cred.ID)
		}
		assert.ElementsMatch(t, seeded, ids)
	})

	t.Run("multi category allocation", func(t *testing.T) {
		seedStock(t, router, apiKey, "life-a", 2)
		seedStock(t, router, apiKey, "life-b", 1)

		body := dto.AllocateRequest{Requests: []dto.CategorySlice{
			{Category: "life-a", Quantity: 2},
			{Category: "life-b", Quantity: 1},
		}}
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", body, alice)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.AllocationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 3, resp.Count)

		perCategory := map[string]int{}
		for _, cred := range resp.Credentials {
			perCategory[cred.Category]++
		}
		assert.Equal(t, map[string]int{"life-a": 2, "life-b": 1}, perCategory)
	})

	t.Run("admin allocates for an owner", func(t *testing.T) {
		seedStock(t, router, apiKey, "life-admin", 1)
		ownerID := uuid.New().String()

		body := dto.AdminAllocateRequest{OwnerID: ownerID, Category: "life-admin", Quantity: 1}
		rr := doJSONWithKey(router, "POST", "/api/v1/admin/allocations", body, apiKey)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		rr = doJSONWithKey(router, "GET", "/api/v1/admin/credentials/export?category=life-admin", nil, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)
		var export dto.ExportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &export))
		require.Equal(t, 1, export.Count)
		assert.Equal(t, "assigned", export.Credentials[0].Status)
		assert.Equal(t, ownerID, export.Credentials[0].OwnerID)
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "life-wg", Quantity: 0}, alice)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var body errorBody
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "invalid_request", body.Code)

		rr = doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Quantity: 1}, alice)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "life-wg", Quantity: 101}, alice)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "batch_too_large", body.Code)

		rr = doJSON(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "life-wg", Quantity: 1})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAllOrNothing(t *testing.T, router *gin.Engine, apiKey string) {
	carol := registerAndLogin(t, router, "aon-carol")

	t.Run("single category shortfall grants nothing", func(t *testing.T) {
		seedStock(t, router, apiKey, "aon", 2)

		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "aon", Quantity: 3}, carol)
		assert.Equal(t, http.StatusConflict, rr.Code)
		var body errorBody
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "pool_exhausted", body.Code)

		rr = doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=aon", nil, carol)
		require.Equal(t, http.StatusOK, rr.Code)
		var avail dto.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &avail))
		assert.Equal(t, int64(2), avail.Available)

		rr = doJSONWithAuth(router, "GET", "/api/v1/allocations", nil, carol)
		require.Equal(t, http.StatusOK, rr.Code)
		var owned dto.AllocationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &owned))
		assert.Equal(t, 0, owned.Count)
	})

	t.Run("multi category shortfall rolls back every category", func(t *testing.T) {
		// Categories are locked in sorted order, so the satisfiable aon-a is
		// locked before the empty aon-z forces the rollback.
		seedStock(t, router, apiKey, "aon-a", 3)

		body := dto.AllocateRequest{Requests: []dto.CategorySlice{
			{Category: "aon-a", Quantity: 2},
			{Category: "aon-z", Quantity: 1},
		}}
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", body, carol)
		assert.Equal(t, http.StatusConflict, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=aon-a", nil, carol)
		require.Equal(t, http.StatusOK, rr.Code)
		var avail dto.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &avail))
		assert.Equal(t, int64(3), avail.Available)
	})

	t.Run("same stock satisfiable afterwards", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "aon-a", Quantity: 3}, carol)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.AllocationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
	})
}

func TestReleaseRetired(t *testing.T, router *gin.Engine, apiKey string) {
	ids := seedStock(t, router, apiKey, "ret", 1)
	dave := registerAndLogin(t, router, "ret-dave")

	rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "ret", Quantity: 1}, dave)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var alloc dto.AllocationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alloc))
	require.Equal(t, 1, alloc.Count)
	require.Equal(t, ids[0], alloc.Credentials[0].ID)

	// Retiring an assigned credential revokes it from its owner
	rr = doJSONWithKey(router, "POST", "/api/v1/admin/credentials/retire", dto.RetireRequest{CredentialIDs: ids}, apiKey)
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("release of a retired credential is rejected", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/allocations/release", dto.ReleaseRequest{CredentialIDs: ids}, dave)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ReleaseResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.OK)
		assert.Empty(t, resp.Released)
		require.Len(t, resp.Failed, 1)
		assert.Equal(t, ids[0], resp.Failed[0].ID)
		assert.Equal(t, "cannot_release_retired", resp.Failed[0].Reason)
	})

	t.Run("retired credential never returns to the pool", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=ret", nil, dave)
		require.Equal(t, http.StatusOK, rr.Code)
		var avail dto.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &avail))
		assert.Equal(t, int64(0), avail.Available)

		rr = doJSONWithKey(router, "GET", "/api/v1/admin/credentials/export?category=ret", nil, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)
		var export dto.ExportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &export))
		require.Equal(t, 1, export.Count)
		assert.Equal(t, "retired", export.Credentials[0].Status)
		assert.Empty(t, export.Credentials[0].OwnerID)
	})

	t.Run("revoked owner no longer holds it", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/v1/allocations", nil, dave)
		require.Equal(t, http.StatusOK, rr.Code)
		var owned dto.AllocationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &owned))
		assert.Equal(t, 0, owned.Count)
	})
}
