package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bitrifttech/rose/internal/service"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of replies that carry no data.
type MessageResponse struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// handleServiceError maps service-layer errors to HTTP status codes.
// Unclassified errors only expose their text in development mode.
func handleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAccessDenied) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Access denied: path outside workspace"})
		return
	}
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationErr.Message})
		return
	}
	var conflictErr *service.ConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: conflictErr.Message})
		return
	}
	if errors.Is(err, service.ErrInvalidState) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	slog.Error("unhandled service error", "path", c.Request.URL.Path, "error", err)
	msg := "Internal server error"
	if Mode == "development" {
		msg = err.Error()
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
}

// workspacePath returns the wildcard path parameter without its leading slash.
func workspacePath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}
