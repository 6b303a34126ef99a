package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessdesk/credpool/internal/api/http/dto"
)

type HealthHandler struct {
	pool *pgxpool.Pool // Optional, can be nil
}

func NewHealthHandler(pool *pgxpool.Pool) *HealthHandler {
	return &HealthHandler{pool: pool}
}

func (h *HealthHandler) Check(c *gin.Context) {
	if h.pool != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}
