package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/admin"
	"github.com/vovakirdan/linechat/internal/auth"
)

// APIHandlers provides the remote operator API.
type APIHandlers struct {
	authService *auth.Service
	processor   *admin.Processor
	onShutdown  func()
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, processor *admin.Processor, onShutdown func(), logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		processor:   processor,
		onShutdown:  onShutdown,
		log:         logger,
	}
}

// TokenRequest represents the token request body.
type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse carries an admin API token.
type TokenResponse struct {
	Token string `json:"token"`
}

// CommandRequest is one admin command line, with or without the leading slash.
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// CommandResponse carries the processor's reply.
type CommandResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Token issues an admin API token.
// POST /api/auth/token
func (h *APIHandlers) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid token request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.IssueAdminToken(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		case errors.Is(err, auth.ErrNotAdmin):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin only"})
		default:
			h.log.Error().Err(err).Str("user", req.Username).Msg("failed to issue token")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("user", req.Username).Msg("admin token issued")
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// Command runs an admin command on behalf of the token's user.
// POST /api/admin/commands
func (h *APIHandlers) Command(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid command request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	actor := c.GetString(ContextKeyUsername)
	reply := h.processor.Execute(c.Request.Context(), actor, req.Command)
	if reply == admin.ShutdownReply && h.onShutdown != nil {
		h.log.Warn().Str("actor", actor).Msg("shutdown requested over admin api")
		h.onShutdown()
	}
	c.JSON(http.StatusOK, CommandResponse{Reply: reply})
}
