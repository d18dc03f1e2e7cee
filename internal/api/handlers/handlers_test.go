package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitrifttech/rose/internal/archive"
	"github.com/bitrifttech/rose/internal/logstream"
	"github.com/bitrifttech/rose/internal/process"
	"github.com/bitrifttech/rose/internal/service"
)

func TestHandleServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		mode       string
		wantStatus int
		wantBody   string
	}{
		{"access denied", fmt.Errorf("resolve: %w", service.ErrAccessDenied), "production", http.StatusForbidden, "Access denied"},
		{"not found", service.NotFoundf("src/a.js"), "production", http.StatusNotFound, "src/a.js"},
		{"validation", &service.ValidationError{Message: "cols and rows must be positive"}, "production", http.StatusBadRequest, "cols and rows"},
		{"corrupt archive", fmt.Errorf("extract: %w", archive.ErrCorrupt), "production", http.StatusInternalServerError, "Internal server error"},
		{"conflict", &service.ConflictError{Message: "Server is already running"}, "production", http.StatusConflict, "already running"},
		{"invalid state", fmt.Errorf("terminal session not started: %w", service.ErrInvalidState), "production", http.StatusConflict, "not started"},
		{"internal production", errors.New("disk on fire"), "production", http.StatusInternalServerError, "Internal server error"},
		{"internal development", errors.New("disk on fire"), "development", http.StatusInternalServerError, "disk on fire"},
	}

	defer func(prev string) { Mode = prev }(Mode)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Mode = tt.mode
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/files/x", nil)

			handleServiceError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestCompleteUTF8(t *testing.T) {
	euro := []byte("€") // 3 bytes
	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{"empty", nil, 0},
		{"ascii", []byte("abc"), 3},
		{"full rune", append([]byte("a"), euro...), 4},
		{"split after one byte", append([]byte("a"), euro[:1]...), 1},
		{"split after two bytes", append([]byte("a"), euro[:2]...), 1},
		{"invalid byte", []byte{'a', 0xff}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := completeUTF8(tt.in); got != tt.want {
				t.Errorf("completeUTF8(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogsStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broker := logstream.NewBroker()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewServerHandler(process.NewSupervisor(t.TempDir(), process.Options{}, quiet, broker, nil), broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/server/logs?stream=1", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		handler.Logs(c)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !broker.HasSubscribers(logstream.TopicApp) {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	broker.Publish(logstream.TopicApp, "listening on 3000")
	broker.Close(logstream.TopicApp)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after close")
	}

	body := w.Body.String()
	if !strings.Contains(body, "data: listening on 3000\n\n") {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("missing done event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
