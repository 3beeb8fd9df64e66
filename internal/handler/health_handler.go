package handler

import (
	"net/http"
	"time"

	"formflow/internal/database"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db      *gorm.DB
	mode    database.Mode
	timeout time.Duration
}

func NewHealthHandler(db *gorm.DB, mode database.Mode, timeout time.Duration) *HealthHandler {
	return &HealthHandler{db: db, mode: mode, timeout: timeout}
}

func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.Health)
}

// Health handles GET /health
// @Summary      Liveness and database status
// @Tags         health
// @Produce      json
// @Success      200  {object}  database.HealthStatus
// @Failure      503  {object}  database.HealthStatus
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	status := database.CheckHealth(c.Request.Context(), h.db, h.mode, h.timeout)
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
