package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// UserHandler handles accounts and sessions
type UserHandler struct {
	engine           Engine
	defaultPrivilege int
	logger           *logrus.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(engine Engine, defaultPrivilege int, logger *logrus.Logger) *UserHandler {
	return &UserHandler{
		engine:           engine,
		defaultPrivilege: defaultPrivilege,
		logger:           logger,
	}
}

// RegisterRoutes mounts the account routes
func (h *UserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/users", h.AddUser)
	rg.GET("/users/:username", h.QueryProfile)
	rg.PATCH("/users/:username", h.ModifyProfile)
	rg.POST("/sessions", h.Login)
	rg.DELETE("/sessions/:username", h.Logout)
}

// AddUserRequest is the body of POST /users. A missing privilege takes the
// configured default.
type AddUserRequest struct {
	Caller    string `json:"caller"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Mail      string `json:"mail" binding:"required"`
	Privilege *int   `json:"privilege"`
}

// ModifyProfileRequest is the body of PATCH /users/:username
type ModifyProfileRequest struct {
	Caller string `json:"caller" binding:"required"`
	models.ProfileUpdate
}

// AddUser handles POST /api/v1/users
func (h *UserHandler) AddUser(c *gin.Context) {
	var req AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	privilege := h.defaultPrivilege
	if req.Privilege != nil {
		privilege = *req.Privilege
	}

	profile, err := h.engine.AddUser(c.Request.Context(), models.NewUserRequest{
		Caller:    req.Caller,
		Username:  req.Username,
		Password:  req.Password,
		Name:      req.Name,
		Mail:      req.Mail,
		Privilege: privilege,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// Login handles POST /api/v1/sessions
func (h *UserHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.engine.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"username": req.Username, "logged_in": true})
}

// Logout handles DELETE /api/v1/sessions/:username
func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.engine.Logout(c.Request.Context(), c.Param("username")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// QueryProfile handles GET /api/v1/users/:username?caller=
func (h *UserHandler) QueryProfile(c *gin.Context) {
	caller := c.Query("caller")
	if caller == "" {
		badRequest(c, "caller is required")
		return
	}

	profile, err := h.engine.QueryProfile(c.Request.Context(), caller, c.Param("username"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// ModifyProfile handles PATCH /api/v1/users/:username
func (h *UserHandler) ModifyProfile(c *gin.Context) {
	var req ModifyProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	profile, err := h.engine.ModifyProfile(c.Request.Context(), req.Caller, c.Param("username"), req.ProfileUpdate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
