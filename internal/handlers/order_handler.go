package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
	"github.com/smarttransit/rail-ticket-engine/internal/services"
)

// OrderHandler handles purchases, refunds and order history
type OrderHandler struct {
	engine Engine
	logger *logrus.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(engine Engine, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{engine: engine, logger: logger}
}

// RegisterRoutes mounts the order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/orders", h.BuyTicket)
	rg.GET("/users/:username/orders", h.QueryOrder)
	rg.POST("/users/:username/orders/:n/refund", h.RefundTicket)
	rg.POST("/users/:username/orders/:n/withdraw", h.WithdrawOrder)
}

// BuyTicket handles POST /api/v1/orders. A purchase answers 201, a queued
// request 202.
func (h *OrderHandler) BuyTicket(c *gin.Context) {
	var req models.BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.Username == "" {
		badRequest(c, "username is required")
		return
	}

	result, err := h.engine.BuyTicket(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == services.BuyQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// QueryOrder handles GET /api/v1/users/:username/orders, newest first
func (h *OrderHandler) QueryOrder(c *gin.Context) {
	orders, err := h.engine.QueryOrder(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// RefundTicket handles POST /api/v1/users/:username/orders/:n/refund
func (h *OrderHandler) RefundTicket(c *gin.Context) {
	n, ok := orderIndex(c)
	if !ok {
		return
	}

	order, err := h.engine.RefundTicket(c.Request.Context(), c.Param("username"), n)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// WithdrawOrder handles POST /api/v1/users/:username/orders/:n/withdraw
func (h *OrderHandler) WithdrawOrder(c *gin.Context) {
	n, ok := orderIndex(c)
	if !ok {
		return
	}

	order, err := h.engine.WithdrawOrder(c.Request.Context(), c.Param("username"), n)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
