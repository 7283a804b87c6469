package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// TrainHandler handles the train catalog and schedule queries
type TrainHandler struct {
	engine Engine
	logger *logrus.Logger
}

// NewTrainHandler creates a new train handler
func NewTrainHandler(engine Engine, logger *logrus.Logger) *TrainHandler {
	return &TrainHandler{engine: engine, logger: logger}
}

// RegisterRoutes mounts the catalog and search routes
func (h *TrainHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/trains", h.AddTrain)
	rg.GET("/trains/:id", h.QueryTrain)
	rg.DELETE("/trains/:id", h.DeleteTrain)
	rg.POST("/trains/:id/release", h.ReleaseTrain)
	rg.GET("/tickets", h.QueryTicket)
	rg.GET("/transfers", h.QueryTransfer)
}

// AddTrain handles POST /api/v1/trains
func (h *TrainHandler) AddTrain(c *gin.Context) {
	var req models.AddTrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	train, err := req.ToTrain()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.engine.AddTrain(c.Request.Context(), train); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"train_id": train.ID, "released": false})
}

// ReleaseTrain handles POST /api/v1/trains/:id/release
func (h *TrainHandler) ReleaseTrain(c *gin.Context) {
	trainID := c.Param("id")
	if err := h.engine.ReleaseTrain(c.Request.Context(), trainID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"train_id": trainID, "released": true})
}

// DeleteTrain handles DELETE /api/v1/trains/:id
func (h *TrainHandler) DeleteTrain(c *gin.Context) {
	if err := h.engine.DeleteTrain(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// QueryTrain handles GET /api/v1/trains/:id?date=
func (h *TrainHandler) QueryTrain(c *gin.Context) {
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}

	schedule, err := h.engine.QueryTrain(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, schedule)
}

// searchParams reads from, to, date and sort shared by ticket and transfer search
func searchParams(c *gin.Context) (from, to string, date models.Date, key models.SortKey, ok bool) {
	from, to = c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		badRequest(c, "from and to are required")
		return
	}
	if date, ok = queryDate(c, "date"); !ok {
		return
	}
	key, err := models.ParseSortKey(c.Query("sort"))
	if err != nil {
		badRequest(c, err.Error())
		return from, to, date, key, false
	}
	return from, to, date, key, true
}

// QueryTicket handles GET /api/v1/tickets?from&to&date&sort
func (h *TrainHandler) QueryTicket(c *gin.Context) {
	from, to, date, key, ok := searchParams(c)
	if !ok {
		return
	}

	results, err := h.engine.QueryTicket(c.Request.Context(), from, to, date, key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if results == nil {
		results = []models.TicketResult{}
	}

	c.JSON(http.StatusOK, gin.H{"count": len(results), "results": results})
}

// QueryTransfer handles GET /api/v1/transfers?from&to&date&sort
func (h *TrainHandler) QueryTransfer(c *gin.Context) {
	from, to, date, key, ok := searchParams(c)
	if !ok {
		return
	}

	results, err := h.engine.QueryTransfer(c.Request.Context(), from, to, date, key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if results == nil {
		results = []models.TransferResult{}
	}

	c.JSON(http.StatusOK, gin.H{"count": len(results), "results": results})
}
