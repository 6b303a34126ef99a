package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/accessdesk/credpool/internal/api/http/dto"
	"github.com/accessdesk/credpool/internal/audit"
	"github.com/accessdesk/credpool/internal/inventory"
	"github.com/accessdesk/credpool/internal/pool"
)

type AdminHandler struct {
	poolService      *pool.Service
	inventoryService *inventory.Service
	recorder         *audit.Recorder // Optional, can be nil
}

func NewAdminHandler(poolService *pool.Service, inventoryService *inventory.Service, recorder *audit.Recorder) *AdminHandler {
	return &AdminHandler{
		poolService:      poolService,
		inventoryService: inventoryService,
		recorder:         recorder,
	}
}

// ImportCredentials adds fresh stock to the pool
// POST /api/v1/admin/credentials/import
func (h *AdminHandler) ImportCredentials(c *gin.Context) {
	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]inventory.ImportItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = inventory.ImportItem{
			ID:       item.ID,
			Category: item.Category,
			Secret:   item.Secret,
		}
	}

	result, err := h.inventoryService.Import(c.Request.Context(), "", items)
	if err != nil {
		if errors.Is(err, inventory.ErrEmptyBatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to import credentials", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential store unavailable", "code": "store_unavailable"})
		return
	}

	resp := dto.ImportResponse{
		ImportedIDs: result.ImportedIDs,
		Imported:    len(result.ImportedIDs),
	}
	if resp.ImportedIDs == nil {
		resp.ImportedIDs = []string{}
	}
	for _, failure := range result.Failed {
		resp.Failed = append(resp.Failed, dto.ImportFailure{
			Index:  failure.Index,
			ID:     failure.ID,
			Reason: failure.Reason,
		})
	}
	c.JSON(http.StatusCreated, resp)
}

// ExportCredentials lists the assignment state of the pool
// GET /api/v1/admin/credentials/export?category=wg
func (h *AdminHandler) ExportCredentials(c *gin.Context) {
	records, err := h.inventoryService.Export(c.Request.Context(), c.Query("category"))
	if err != nil {
		slog.Error("Failed to export credentials", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential store unavailable", "code": "store_unavailable"})
		return
	}

	creds := make([]dto.ExportedCredential, len(records))
	for i, rec := range records {
		creds[i] = dto.ExportedCredential{
			ID:         rec.ID,
			Category:   rec.Category,
			Status:     rec.Status,
			OwnerID:    rec.OwnerID,
			AssignedAt: rec.AssignedAt,
			CreatedAt:  rec.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, dto.ExportResponse{
		Credentials: creds,
		Count:       len(creds),
	})
}

// RetireCredentials removes credentials from circulation for good
// POST /api/v1/admin/credentials/retire
func (h *AdminHandler) RetireCredentials(c *gin.Context) {
	var req dto.RetireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.inventoryService.Retire(c.Request.Context(), "", req.CredentialIDs)
	if err != nil {
		if errors.Is(err, inventory.ErrEmptyBatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to retire credentials", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential store unavailable", "code": "store_unavailable"})
		return
	}

	resp := dto.RetireResponse{
		OK:      len(result.Failed) == 0,
		Retired: result.Retired,
	}
	if resp.Retired == nil {
		resp.Retired = []string{}
	}
	for _, failure := range result.Failed {
		resp.Failed = append(resp.Failed, dto.RetireFailure{ID: failure.ID, Reason: failure.Reason})
	}
	c.JSON(http.StatusOK, resp)
}

// AllocateForOwner grants credentials on behalf of an owner
// POST /api/v1/admin/allocations
func (h *AdminHandler) AllocateForOwner(c *gin.Context) {
	var req dto.AdminAllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requests, err := categoryRequests(req.Category, req.Quantity, req.Requests)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	granted, err := h.poolService.AllocateSet(c.Request.Context(), req.OwnerID, requests)
	if err != nil {
		respondPoolError(c, err)
		return
	}

	slog.Info("Credentials allocated by admin", "owner_id", req.OwnerID, "count", len(granted))
	c.JSON(http.StatusCreated, dto.AllocationResponse{
		Credentials: toCredentialResponses(granted),
		Count:       len(granted),
	})
}

// ListAuditEvents returns the newest audit events
// GET /api/v1/admin/audit-events?type=credential.allocated&limit=50
func (h *AdminHandler) ListAuditEvents(c *gin.Context) {
	if h.recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit recording is not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	events, err := h.recorder.ListRecent(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		slog.Error("Failed to list audit events", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential store unavailable", "code": "store_unavailable"})
		return
	}

	dtoEvents := make([]dto.AuditEvent, len(events))
	for i, event := range events {
		dtoEvents[i] = dto.AuditEvent{
			ID:            event.ID,
			Type:          event.Type,
			OwnerID:       event.OwnerID,
			CredentialIDs: event.CredentialIDs,
			Metadata:      event.Metadata,
			OccurredAt:    event.OccurredAt,
		}
	}

	c.JSON(http.StatusOK, dto.AuditEventsResponse{
		Events: dtoEvents,
		Count:  len(dtoEvents),
	})
}
