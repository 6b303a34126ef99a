package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/accessdesk/credpool/internal/api/http/dto"
	"github.com/accessdesk/credpool/internal/pool"
	"github.com/accessdesk/credpool/internal/secrets"
)

type AllocationHandler struct {
	poolService *pool.Service
	cipher      *secrets.Cipher
}

func NewAllocationHandler(poolService *pool.Service, cipher *secrets.Cipher) *AllocationHandler {
	return &AllocationHandler{
		poolService: poolService,
		cipher:      cipher,
	}
}

// Allocate grants credentials to the authenticated user
// POST /api/v1/allocations
func (h *AllocationHandler) Allocate(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id not found in context"})
		return
	}

	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requests, err := categoryRequests(req.Category, req.Quantity, req.Requests)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	granted, err := h.poolService.AllocateSet(c.Request.Context(), userID, requests)
	if err != nil {
		respondPoolError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.AllocationResponse{
		Credentials: toCredentialResponses(granted),
		Count:       len(granted),
	})
}

// List returns the credentials currently assigned to the authenticated user
// GET /api/v1/allocations
func (h *AllocationHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id not found in context"})
		return
	}

	creds, err := h.poolService.ListOwned(c.Request.Context(), userID)
	if err != nil {
		respondPoolError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AllocationResponse{
		Credentials: toCredentialResponses(creds),
		Count:       len(creds),
	})
}

// Reveal returns the decrypted secret material of one assigned credential
// GET /api/v1/allocations/:id/reveal
func (h *AllocationHandler) Reveal(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id not found in context"})
		return
	}

	credentialID := c.Param("id")
	cred, err := h.poolService.GetOwned(c.Request.Context(), userID, credentialID)
	if err != nil {
		if errors.Is(err, pool.ErrNotFound) || errors.Is(err, pool.ErrNotOwner) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		respondPoolError(c, err)
		return
	}

	plaintext, err := h.cipher.Decrypt(cred.SecretMaterial)
	if err != nil {
		slog.Error("Failed to decrypt secret material", "credential_id", cred.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	slog.Info("Credential secret revealed", "credential_id", cred.ID, "user_id", userID)
	c.JSON(http.StatusOK, dto.RevealResponse{
		ID:         cred.ID,
		Category:   cred.Category,
		Secret:     string(plaintext),
		AssignedAt: cred.AssignedAt,
	})
}

// Release returns credentials to the pool
// POST /api/v1/allocations/release
func (h *AllocationHandler) Release(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user_id not found in context"})
		return
	}

	var req dto.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.poolService.Release(c.Request.Context(), req.CredentialIDs)
	if err != nil {
		respondPoolError(c, err)
		return
	}

	c.JSON(http.StatusOK, toReleaseResponse(result))
}

// Availability reports how many unassigned credentials a category holds.
// The count is advisory: it may be stale by the time the caller allocates.
// GET /api/v1/pool/availability?category=wg
func (h *AllocationHandler) Availability(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category query parameter is required"})
		return
	}

	available, err := h.poolService.CountAvailable(c.Request.Context(), category)
	if err != nil {
		respondPoolError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AvailabilityResponse{
		Category:  category,
		Available: available,
	})
}

// categoryRequests normalizes the two request forms into category slices.
func categoryRequests(category string, quantity int, slices []dto.CategorySlice) ([]pool.CategoryRequest, error) {
	if len(slices) > 0 {
		if category != "" || quantity != 0 {
			return nil, errors.New("use either category/quantity or requests, not both")
		}
		requests := make([]pool.CategoryRequest, 0, len(slices))
		for _, s := range slices {
			requests = append(requests, pool.CategoryRequest{Category: s.Category, Quantity: s.Quantity})
		}
		return requests, nil
	}
	if category == "" {
		return nil, errors.New("category is required")
	}
	return []pool.CategoryRequest{{Category: category, Quantity: quantity}}, nil
}

func toCredentialResponses(creds []pool.Credential) []dto.CredentialResponse {
	responses := make([]dto.CredentialResponse, len(creds))
	for i, cred := range creds {
		responses[i] = dto.CredentialResponse{
			ID:         cred.ID,
			Category:   cred.Category,
			Status:     string(cred.Status),
			AssignedAt: cred.AssignedAt,
		}
	}
	return responses
}

func toReleaseResponse(result pool.ReleaseResult) dto.ReleaseResponse {
	resp := dto.ReleaseResponse{
		OK:       result.OK(),
		Released: result.Released,
	}
	if resp.Released == nil {
		resp.Released = []string{}
	}
	for _, failure := range result.Failed {
		resp.Failed = append(resp.Failed, dto.ReleaseFailure{ID: failure.ID, Reason: string(failure.Reason)})
	}
	return resp
}

func respondPoolError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pool.ErrPoolExhausted):
		c.JSON(http.StatusConflict, gin.H{
			"error": "not enough unassigned credentials to satisfy the request; retry later or import more stock",
			"code":  "pool_exhausted",
		})
	case errors.Is(err, pool.ErrBatchTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "batch_too_large"})
	case errors.Is(err, pool.ErrInvalidQuantity),
		errors.Is(err, pool.ErrInvalidCategory),
		errors.Is(err, pool.ErrInvalidOwner):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
	case errors.Is(err, pool.ErrStoreUnavailable):
		slog.Error("Credential store unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential store unavailable", "code": "store_unavailable"})
	default:
		slog.Error("Unexpected pool error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
