package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger reports database reachability
type Pinger interface {
	PingContext(ctx context.Context) error
}

// AdminHandler handles the administrative wipe and health checks
type AdminHandler struct {
	engine  Engine
	db      Pinger // nil when running in memory
	version string
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler. db may be nil.
func NewAdminHandler(engine Engine, db Pinger, version string, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		engine:  engine,
		db:      db,
		version: version,
		logger:  logger,
	}
}

// RegisterRoutes mounts the admin routes
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/admin/clean", h.Clean)
	rg.GET("/health", h.Health)
}

// Clean handles POST /api/v1/admin/clean
func (h *AdminHandler) Clean(c *gin.Context) {
	if err := h.engine.Clean(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithField("ip", c.ClientIP()).Warn("Engine state wiped")
	c.JSON(http.StatusOK, gin.H{"message": "All engine state cleared"})
}

// Health handles GET /api/v1/health
func (h *AdminHandler) Health(c *gin.Context) {
	dbStatus := "disabled"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
		dbStatus = "healthy"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"database":  dbStatus,
		"engine":    h.engine.Stats(),
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	})
}
