package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bitrifttech/rose/internal/logstream"
	"github.com/bitrifttech/rose/internal/process"
)

// StartServerRequest is the optional body of POST /server/start.
type StartServerRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// LogsResponse is returned by GET /server/logs.
type LogsResponse struct {
	Lines []string `json:"lines"`
}

// ServerHandler controls the workspace's application process.
type ServerHandler struct {
	supervisor *process.Supervisor
	broker     *logstream.LogBroker
}

// NewServerHandler creates a new ServerHandler
func NewServerHandler(supervisor *process.Supervisor, broker *logstream.LogBroker) *ServerHandler {
	return &ServerHandler{supervisor: supervisor, broker: broker}
}

// Start launches the application. An empty body runs the default command.
func (h *ServerHandler) Start(c *gin.Context) {
	var req StartServerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	status, err := h.supervisor.Start(req.Command, req.Args)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Stop terminates the application's process group.
func (h *ServerHandler) Stop(c *gin.Context) {
	if err := h.supervisor.Stop(c.Request.Context()); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Server stopped"})
}

// Status reports whether the application is running.
func (h *ServerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.Status())
}

// Logs returns recent application output. With ?stream=1 the reply is a
// Server-Sent Events stream of new lines after the recent ones.
func (h *ServerHandler) Logs(c *gin.Context) {
	if c.Query("stream") == "" || h.broker == nil {
		c.JSON(http.StatusOK, LogsResponse{Lines: h.supervisor.Logs()})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	logChan := h.broker.Subscribe(logstream.TopicApp)
	defer h.broker.Unsubscribe(logstream.TopicApp, logChan)

	for _, line := range h.supervisor.Logs() {
		fmt.Fprintf(c.Writer, "data: %s\n\n", line)
	}
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case line, ok := <-logChan:
			if !ok {
				fmt.Fprintf(c.Writer, "event: done\ndata: Stream ended\n\n")
				c.Writer.Flush()
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", line)
			c.Writer.Flush()
		}
	}
}
