package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessdesk/credpool/internal/api/http/dto"
)

type allocOutcome struct {
	status int
	code   string
	ids    []string
}

// allocateConcurrently fires one allocation per token at the same moment and
// collects the outcomes. Assertions stay on the test goroutine.
func allocateConcurrently(router *gin.Engine, tokens []string, category string, quantity int) []allocOutcome {
	start := make(chan struct{})
	results := make(chan allocOutcome, len(tokens))

	for _, token := range tokens {
		go func(token string) {
			<-start
			rr := doJSONWithAuth(router, "POST", "/api/v1/allocations",
				dto.AllocateRequest{Category: category, Quantity: quantity}, token)

			out := allocOutcome{status: rr.Code}
			if rr.Code == http.StatusCreated {
				var resp dto.AllocationResponse
				if err := json.Unmarshal(rr.Body.Bytes(), &resp); err == nil {
					for _, cred := range resp.Credentials {
						out.ids = append(out.ids, cred.ID)
					}
				}
			} else {
				var body errorBody
				if err := json.Unmarshal(rr.Body.Bytes(), &body); err == nil {
					out.code = body.Code
				}
			}
			results <- out
		}(token)
	}
	close(start)

	outcomes := make([]allocOutcome, 0, len(tokens))
	for range tokens {
		outcomes = append(outcomes, <-results)
	}
	return outcomes
}

// TestContendedAllocation puts five credentials in front of two callers that
// each want three. Only one request fits, so exactly one caller wins the whole
// batch and the other is turned away with the stock untouched.
func TestContendedAllocation(t *testing.T, router *gin.Engine, apiKey string) {
	seeded := seedStock(t, router, apiKey, "cont", 5)
	tokens := []string{
		registerAndLogin(t, router, "cont-user-a"),
		registerAndLogin(t, router, "cont-user-b"),
	}

	outcomes := allocateConcurrently(router, tokens, "cont", 3)

	var winners, losers int
	granted := map[string]bool{}
	for _, out := range outcomes {
		switch out.status {
		case http.StatusCreated:
			winners++
			assert.Len(t, out.ids, 3)
			for _, id := range out.ids {
				assert.False(t, granted[id], "credential %s granted twice", id)
				granted[id] = true
				assert.Contains(t, seeded, id)
			}
		case http.StatusConflict:
			losers++
			assert.Equal(t, "pool_exhausted", out.code)
		default:
			t.Errorf("unexpected status %d", out.status)
		}
	}

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)
	assert.Len(t, granted, 3)

	rr := doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=cont", nil, tokens[0])
	require.Equal(t, http.StatusOK, rr.Code)
	var avail dto.AvailabilityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &avail))
	assert.Equal(t, int64(2), avail.Available)
}

// TestParallelSingles drains a pool of ten credentials with twenty callers
// asking for one each. Exactly ten succeed and every credential is handed out
// exactly once.
func TestParallelSingles(t *testing.T, router *gin.Engine, apiKey string) {
	seeded := seedStock(t, router, apiKey, "par", 10)

	tokens := make([]string, 20)
	for i := range tokens {
		tokens[i] = registerAndLogin(t, router, fmt.Sprintf("par-user-%02d", i))
	}

	outcomes := allocateConcurrently(router, tokens, "par", 1)

	var winners, losers int
	granted := map[string]bool{}
	for _, out := range outcomes {
		switch out.status {
		case http.StatusCreated:
			winners++
			require.Len(t, out.ids, 1)
			assert.False(t, granted[out.ids[0]], "credential %s granted twice", out.ids[0])
			granted[out.ids[0]] = true
		case http.StatusConflict:
			losers++
			assert.Equal(t, "pool_exhausted", out.code)
		default:
			t.Errorf("unexpected status %d", out.status)
		}
	}

	assert.Equal(t, 10, winners)
	assert.Equal(t, 10, losers)

	grantedIDs := make([]string, 0, len(granted))
	for id := range granted {
		grantedIDs = append(grantedIDs, id)
	}
	assert.ElementsMatch(t, seeded, grantedIDs)

	rr := doJSONWithAuth(router, "GET", "/api/v1/pool/availability?category=par", nil, tokens[0])
	require.Equal(t, http.StatusOK, rr.Code)
	var avail dto.AvailabilityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &avail))
	assert.Equal(t, int64(0), avail.Available)
}
