package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/bitrifttech/rose/internal/terminal"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingInterval   = (wsPongWait * 9) / 10
	wsMaxMessageSize = 64 * 1024
)

// Socket message types.
const (
	MessageInput     = "input"
	MessageResize    = "resize"
	MessageConnected = "connected"
	MessageOutput    = "output"
)

// SocketMessage is one frame of the terminal socket protocol.
type SocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ResizeData is the payload of a resize message.
type ResizeData struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// ConnectedData is the payload of the greeting sent to a new socket.
type ConnectedData struct {
	Shell string `json:"shell"`
	Cwd   string `json:"cwd"`
}

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Command string `json:"command" binding:"required"`
}

// TerminalHandler serves the shared terminal and command execution.
type TerminalHandler struct {
	session  *terminal.Session
	runner   *terminal.Runner
	upgrader websocket.Upgrader
}

// NewTerminalHandler creates a new TerminalHandler
func NewTerminalHandler(session *terminal.Session, runner *terminal.Runner) *TerminalHandler {
	return &TerminalHandler{
		session: session,
		runner:  runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start spawns the shell if it is not running.
func (h *TerminalHandler) Start(c *gin.Context) {
	if err := h.session.Start(); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Info())
}

// Stop terminates the shell and disconnects every viewer.
func (h *TerminalHandler) Stop(c *gin.Context) {
	if err := h.session.Stop(); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Info())
}

// Status reports the terminal state.
func (h *TerminalHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Info())
}

// Execute runs a command in the live terminal and returns its output.
func (h *TerminalHandler) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.runner.Run(c.Request.Context(), req.Command)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	slog.Info("Executed command", "command", req.Command, "exit_code", result.ExitCode, "timed_out", result.TimedOut)
	c.JSON(http.StatusOK, result)
}

// Connect upgrades the request and attaches it to the shared terminal,
// starting the shell if needed.
func (h *TerminalHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		slog.Warn("Terminal upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := h.session.Subscribe()
	if err != nil {
		slog.Error("Failed to attach terminal", "error", err)
		closeSocket(conn, websocket.CloseInternalServerErr, "failed to start terminal")
		return
	}
	defer h.session.Unsubscribe(sub)

	info := h.session.Info()
	slog.Info("Terminal viewer connected", "subscriber", sub.ID, "viewers", info.Subscribers)

	if err := writeMessage(conn, MessageConnected, ConnectedData{Shell: info.Shell, Cwd: info.Cwd}); err != nil {
		return
	}

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	grp, gctx := errgroup.WithContext(c.Request.Context())
	grp.Go(func() error { return h.pumpInput(conn) })
	grp.Go(func() error { return pumpOutput(conn, sub) })
	grp.Go(func() error { return pingConn(gctx, conn) })
	grp.Go(func() error {
		// Unblocks both pumps once any of them has finished.
		<-gctx.Done()
		conn.Close()
		h.session.Unsubscribe(sub)
		return nil
	})

	if err := grp.Wait(); err != nil && !isClosed(err) {
		slog.Debug("Terminal viewer closed", "subscriber", sub.ID, "error", err)
	}
	slog.Info("Terminal viewer disconnected", "subscriber", sub.ID)
}

func (h *TerminalHandler) pumpInput(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var msg SocketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("Ignoring invalid terminal message", "error", err)
			continue
		}
		switch msg.Type {
		case MessageInput:
			var data string
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				slog.Warn("Ignoring invalid terminal input", "error", err)
				continue
			}
			if _, err := h.session.Write([]byte(data)); err != nil {
				return fmt.Errorf("write terminal: %w", err)
			}
		case MessageResize:
			var size ResizeData
			if err := json.Unmarshal(msg.Data, &size); err != nil {
				slog.Warn("Ignoring invalid resize", "error", err)
				continue
			}
			if err := h.session.Resize(size.Cols, size.Rows); err != nil {
				slog.Warn("Ignoring resize", "cols", size.Cols, "rows", size.Rows, "error", err)
			}
		default:
			slog.Warn("Ignoring unknown terminal message", "type", msg.Type)
		}
	}
}

// pumpOutput forwards terminal output until the subscription ends. Bytes of a
// rune split across chunks are held back until the rune is complete.
func pumpOutput(conn *websocket.Conn, sub *terminal.Subscription) error {
	var pending []byte
	for chunk := range sub.Output() {
		pending = append(pending, chunk...)
		n := completeUTF8(pending)
		if n == 0 {
			continue
		}
		if err := writeMessage(conn, MessageOutput, string(pending[:n])); err != nil {
			return err
		}
		pending = append(pending[:0], pending[n:]...)
	}
	closeSocket(conn, websocket.CloseNormalClosure, "terminal closed")
	return errTerminalClosed
}

var errTerminalClosed = errors.New("terminal closed")

func pingConn(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(SocketMessage{Type: typ, Data: payload})
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsWriteWait))
}

func isClosed(err error) bool {
	return errors.Is(err, errTerminalClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside a multi-byte rune.
func completeUTF8(b []byte) int {
	n := len(b)
	// A rune is at most 4 bytes, so only the tail needs checking.
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return i
		}
		break
	}
	return n
}
