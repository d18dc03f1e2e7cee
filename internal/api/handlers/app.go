package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bitrifttech/rose/internal/archive"
	"github.com/bitrifttech/rose/internal/service"
	"github.com/bitrifttech/rose/internal/snapshot"
)

// AppHandler moves the whole workspace tree in and out as a zip.
type AppHandler struct {
	workspace snapshot.Target
	maxUpload int64
}

// NewAppHandler creates a new AppHandler. Uploads larger than maxUpload bytes
// are rejected.
func NewAppHandler(workspace snapshot.Target, maxUpload int64) *AppHandler {
	return &AppHandler{workspace: workspace, maxUpload: maxUpload}
}

// Upload replaces the live workspace with the zip in the multipart field
// "file" and reinstalls dependencies. A failing install is reported as a
// warning alongside a successful reply.
func (h *AppHandler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No file uploaded"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read upload"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read upload"})
		return
	}

	report, err := h.workspace.Restore(c.Request.Context(), data)
	if err != nil {
		// Uploads are client input.
		if errors.Is(err, archive.ErrCorrupt) {
			err = &service.ValidationError{Message: "Invalid zip archive"}
		}
		handleServiceError(c, err)
		return
	}

	slog.Info("Workspace uploaded", "filename", fileHeader.Filename, "bytes", len(data), "warning", report.Warning)
	c.JSON(http.StatusOK, MessageResponse{
		Message: "App uploaded successfully",
		Warning: report.Warning,
	})
}

// Download returns a zip of the live workspace.
func (h *AppHandler) Download(c *gin.Context) {
	data, err := h.workspace.Archive(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="app.zip"`)
	c.Data(http.StatusOK, "application/zip", data)
}
