package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
	"github.com/smarttransit/rail-ticket-engine/internal/services"
)

// Engine is the reservation engine surface the HTTP adapter drives
type Engine interface {
	AddUser(ctx context.Context, req models.NewUserRequest) (*models.Profile, error)
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context, username string) error
	QueryProfile(ctx context.Context, caller, username string) (*models.Profile, error)
	ModifyProfile(ctx context.Context, caller, username string, update models.ProfileUpdate) (*models.Profile, error)

	AddTrain(ctx context.Context, t *models.Train) error
	ReleaseTrain(ctx context.Context, trainID string) error
	DeleteTrain(ctx context.Context, trainID string) error
	QueryTrain(ctx context.Context, trainID string, runDate models.Date) (*models.TrainSchedule, error)

	QueryTicket(ctx context.Context, from, to string, date models.Date, sortKey models.SortKey) ([]models.TicketResult, error)
	QueryTransfer(ctx context.Context, from, to string, date models.Date, sortKey models.SortKey) ([]models.TransferResult, error)

	BuyTicket(ctx context.Context, req models.BuyRequest) (*services.BuyResult, error)
	RefundTicket(ctx context.Context, username string, n int) (*models.Order, error)
	WithdrawOrder(ctx context.Context, username string, n int) (*models.Order, error)
	QueryOrder(ctx context.Context, username string) ([]models.Order, error)

	Clean(ctx context.Context) error
	Stats() map[string]int
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// errorStatus maps engine errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicate),
		errors.Is(err, services.ErrAlreadyReleased),
		errors.Is(err, services.ErrAlreadyLoggedIn),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrSoldOut):
		return http.StatusConflict
	case errors.Is(err, services.ErrPrivilegeDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrBadCredential), errors.Is(err, services.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the engine error. Internal failures are logged and
// their detail is not sent to the client.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := errorStatus(err)
	code := services.ErrorCode(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.FullPath()).Error("Engine operation failed")
		c.Error(err)
		c.JSON(status, ErrorResponse{
			Error:   "internal_error",
			Message: "The request could not be completed",
			Code:    code,
		})
		return
	}
	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
		Code:    "INVALID_ARGUMENT",
	})
}

// queryDate reads a required YYYY-MM-DD (or MM-DD) query parameter
func queryDate(c *gin.Context, name string) (models.Date, bool) {
	raw := c.Query(name)
	if raw == "" {
		badRequest(c, name+" is required")
		return 0, false
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		badRequest(c, err.Error())
		return 0, false
	}
	return d, true
}

// orderIndex reads the 1-based :n path parameter
func orderIndex(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 {
		badRequest(c, "order index must be a positive integer")
		return 0, false
	}
	return n, true
}
