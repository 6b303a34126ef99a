package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessdesk/credpool/internal/api/http/dto"
	"github.com/accessdesk/credpool/internal/audit"
)

func TestAuditTrail(t *testing.T, router *gin.Engine, apiKey string) {
	ids := seedStock(t, router, apiKey, "aud", 2)
	erin := registerAndLogin(t, router, "aud-erin")

	rr := doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "aud", Quantity: 1}, erin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var alloc dto.AllocationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alloc))
	require.Equal(t, 1, alloc.Count)
	allocatedID := alloc.Credentials[0].ID

	rr = doJSONWithAuth(router, "POST", "/api/v1/allocations/release", dto.ReleaseRequest{CredentialIDs: []string{allocatedID}}, erin)
	require.Equal(t, http.StatusOK, rr.Code)

	// Trip an exhaustion to get a pool.exhausted event on record
	rr = doJSONWithAuth(router, "POST", "/api/v1/allocations", dto.AllocateRequest{Category: "aud", Quantity: 50}, erin)
	require.Equal(t, http.StatusConflict, rr.Code)

	t.Run("requires API key", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/v1/admin/audit-events", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("records the lifecycle", func(t *testing.T) {
		// Allocator events are written after commit on a detached context, so
		// give them a moment to land.
		assert.Eventually(t, func() bool {
			events, err := listEvents(router, apiKey, "", 500)
			if err != nil {
				return false
			}
			return hasEventWithCredential(events, audit.TypeImported, ids[0]) &&
				hasEventWithCredential(events, audit.TypeAllocated, allocatedID) &&
				hasEventWithCredential(events, audit.TypeReleased, allocatedID) &&
				hasExhaustionFor(events, "aud")
		}, 10*time.Second, 200*time.Millisecond, "expected import, allocate, release and exhaustion events")
	})

	t.Run("exhaustion carries the shortfall", func(t *testing.T) {
		events, err := listEvents(router, apiKey, audit.TypeExhausted, 500)
		require.NoError(t, err)
		require.NotEmpty(t, events)

		var found bool
		for _, event := range events {
			if event.Metadata["category"] == "aud" {
				found = true
				assert.Equal(t, float64(50), event.Metadata["requested"])
				assert.Equal(t, float64(2), event.Metadata["available"])
			}
		}
		assert.True(t, found, "no exhaustion event for category aud")
	})

	t.Run("filter by type", func(t *testing.T) {
		events, err := listEvents(router, apiKey, audit.TypeImported, 500)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		for _, event := range events {
			assert.Equal(t, audit.TypeImported, event.Type)
		}
	})

	t.Run("limit", func(t *testing.T) {
		events, err := listEvents(router, apiKey, "", 1)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

// listEvents is also polled from assert.Eventually's goroutine, so it reports
// failures as errors instead of failing the test itself.
func listEvents(router *gin.Engine, apiKey, eventType string, limit int) ([]dto.AuditEvent, error) {
	path := "/api/v1/admin/audit-events?limit=" + strconv.Itoa(limit)
	if eventType != "" {
		path += "&type=" + eventType
	}
	rr := doJSONWithKey(router, "GET", path, nil, apiKey)
	if rr.Code != http.StatusOK {
		return nil, fmt.Errorf("audit-events returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp dto.AuditEventsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func hasExhaustionFor(events []dto.AuditEvent, category string) bool {
	for _, event := range events {
		if event.Type == audit.TypeExhausted && event.Metadata["category"] == category {
			return true
		}
	}
	return false
}

func hasEventWithCredential(events []dto.AuditEvent, eventType, credentialID string) bool {
	for _, event := range events {
		if event.Type != eventType {
			continue
		}
		for _, id := range event.CredentialIDs {
			if id == credentialID {
				return true
			}
		}
	}
	return false
}
