package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessdesk/credpool/internal/api/http/dto"
)

func TestInventory(t *testing.T, router *gin.Engine, apiKey string) {
	t.Run("import requires API key", func(t *testing.T) {
		body := dto.ImportRequest{Items: []dto.ImportItem{{Category: "inv", Secret: "s"}}}

		rr := doJSON(router, "POST", "/api/v1/admin/credentials/import", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", body, "wrong-key")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("import", func(t *testing.T) {
		body := dto.ImportRequest{Items: []dto.ImportItem{
			{Category: "inv", Secret: "inv-conf-0"},
			{Category: "inv", Secret: "inv-conf-1"},
			{Category: "inv", Secret: "inv-conf-2"},
		}}
		rr := doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", body, apiKey)
		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.ImportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Imported)
		assert.Len(t, resp.ImportedIDs, 3)
		assert.Empty(t, resp.Failed)
	})

	t.Run("import duplicate id", func(t *testing.T) {
		id := uuid.New().String()
		body := dto.ImportRequest{Items: []dto.ImportItem{{ID: id, Category: "inv", Secret: "inv-dup"}}}
		rr := doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", body, apiKey)
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", body, apiKey)
		require.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.ImportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Imported)
		require.Len(t, resp.Failed, 1)
		assert.Equal(t, "duplicate_id", resp.Failed[0].Reason)
		assert.Equal(t, id, resp.Failed[0].ID)
	})

	t.Run("import rejects bad items", func(t *testing.T) {
		body := dto.ImportRequest{Items: []dto.ImportItem{
			{ID: "not-a-uuid", Category: "inv", Secret: "x"},
		}}
		rr := doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", body, apiKey)
		require.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.ImportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Imported)
		require.Len(t, resp.Failed, 1)
		assert.Equal(t, "invalid_id", resp.Failed[0].Reason)
	})

	t.Run("import empty batch", func(t *testing.T) {
		rr := doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", dto.ImportRequest{}, apiKey)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("export never carries secret material", func(t *testing.T) {
		rr := doJSONWithKey(router, "GET", "/api/v1/admin/credentials/export?category=inv", nil, apiKey)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ExportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.GreaterOrEqual(t, resp.Count, 3)
		for _, cred := range resp.Credentials {
			assert.Equal(t, "inv", cred.Category)
		}
		assert.NotContains(t, rr.Body.String(), "inv-conf-0")
		assert.NotContains(t, rr.Body.String(), "secret")
	})

	t.Run("retire", func(t *testing.T) {
		body := dto.ImportRequest{Items: []dto.ImportItem{{Category: "inv-retire", Secret: "inv-retire-0"}}}
		rr := doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", body, apiKey)
		require.Equal(t, http.StatusCreated, rr.Code)

		var imported dto.ImportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &imported))
		require.Len(t, imported.ImportedIDs, 1)
		id := imported.ImportedIDs[0]

		retireBody := dto.RetireRequest{CredentialIDs: []string{id}}
		rr = doJSONWithKey(router, "POST", "/api/v1/admin/credentials/retire", retireBody, apiKey)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.RetireResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.Equal(t, []string{id}, resp.Retired)

		// Retiring an already retired credential stays a success
		rr = doJSONWithKey(router, "POST", "/api/v1/admin/credentials/retire", retireBody, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.Equal(t, []string{id}, resp.Retired)

		rr = doJSONWithKey(router, "GET", "/api/v1/admin/credentials/export?category=inv-retire", nil, apiKey)
		require.Equal(t, http.StatusOK, rr.Code)
		var export dto.ExportResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &export))
		require.Equal(t, 1, export.Count)
		assert.Equal(t, "retired", export.Credentials[0].Status)
	})

	t.Run("retire unknown id", func(t *testing.T) {
		body := dto.RetireRequest{CredentialIDs: []string{uuid.New().String()}}
		rr := doJSONWithKey(router, "POST", "/api/v1/admin/credentials/retire", body, apiKey)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.RetireResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.False(t, resp.OK)
		require.Len(t, resp.Failed, 1)
		assert.Equal(t, "not_found", resp.Failed[0].Reason)
	})

	t.Run("availability tracks stock", func(t *testing.T) {
		token := registerAndLogin(t, router, "invwatcher")

		seedStock(t, router, apiKey, "inv-avail", 4)

		rr := doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=inv-avail", nil, token)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "inv-avail", resp.Category)
		assert.Equal(t, int64(4), resp.Available)
	})

	t.Run("availability for unknown category is zero", func(t *testing.T) {
		token := registerAndLogin(t, router, "invwatcher2")
		rr := doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=no-such-cat", nil, token)
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AvailabilityResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, int64(0), resp.Available)
	})
}

// seedStock imports fresh credentials into the category and returns their ids.
func seedStock(t *testing.T, router *gin.Engine, apiKey, category string, n int) []string {
	t.Helper()

	items := make([]dto.ImportItem, n)
	for i := range items {
		items[i] = dto.ImportItem{Category: category, Secret: fmt.Sprintf("%s-conf-%d", category, i)}
	}
	rr := doJSONWithKey(router, "POST", "/api/v1/admin/credentials/import", dto.ImportRequest{Items: items}, apiKey)
	require.Equal(t, http.StatusCreated, rr.Code, "seed %s: %s", category, rr.Body.String())

	var resp dto.ImportResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.ImportedIDs, n)
	return resp.ImportedIDs
}
