package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bitrifttech/rose/internal/files"
)

// FileHandler serves the workspace tree.
type FileHandler struct {
	store *files.Store
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(store *files.Store) *FileHandler {
	return &FileHandler{store: store}
}

// WriteFileRequest is the body of POST and PUT /files/{path}.
type WriteFileRequest struct {
	Content     string `json:"content"`
	IsDirectory bool   `json:"isDirectory"`
}

// FileContentResponse is returned when GET /files/{path} names a file.
type FileContentResponse struct {
	Content string `json:"content"`
}

// MoveRequest is the body of POST /move.
type MoveRequest struct {
	SourcePath string `json:"sourcePath" binding:"required"`
	TargetPath string `json:"targetPath" binding:"required"`
}

// DeleteRequest is the body of DELETE /delete.
type DeleteRequest struct {
	Path string `json:"path" binding:"required"`
}

// Get lists a directory or returns a file's content.
func (h *FileHandler) Get(c *gin.Context) {
	path := workspacePath(c)

	isDir, err := h.store.Stat(path)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if isDir {
		entries, err := h.store.List(path)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	content, err := h.store.Read(path)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, FileContentResponse{Content: content})
}

// Create writes a new file or directory.
func (h *FileHandler) Create(c *gin.Context) {
	path := workspacePath(c)

	var req WriteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.store.Write(path, req.Content, req.IsDirectory); err != nil {
		handleServiceError(c, err)
		return
	}
	slog.Info("Created workspace entry", "path", path, "directory", req.IsDirectory)
	c.JSON(http.StatusOK, MessageResponse{Message: "Created successfully"})
}

// Update overwrites an existing file.
func (h *FileHandler) Update(c *gin.Context) {
	path := workspacePath(c)

	var req WriteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.store.Update(path, req.Content); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Updated successfully"})
}

// Delete removes a path recursively. Missing paths succeed.
func (h *FileHandler) Delete(c *gin.Context) {
	path := workspacePath(c)

	if err := h.store.Delete(path); err != nil {
		handleServiceError(c, err)
		return
	}
	slog.Info("Deleted workspace entry", "path", path)
	c.JSON(http.StatusOK, MessageResponse{Message: "Deleted successfully"})
}

// Move renames a path inside the workspace.
func (h *FileHandler) Move(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.store.Move(req.SourcePath, req.TargetPath); err != nil {
		handleServiceError(c, err)
		return
	}
	slog.Info("Moved workspace entry", "source", req.SourcePath, "target", req.TargetPath)
	c.JSON(http.StatusOK, MessageResponse{Message: "Moved successfully"})
}

// Remove deletes a path named in the body and fails if it does not exist.
func (h *FileHandler) Remove(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.store.Remove(req.Path); err != nil {
		handleServiceError(c, err)
		return
	}
	slog.Info("Deleted workspace entry", "path", req.Path)
	c.JSON(http.StatusOK, MessageResponse{Message: "Deleted successfully"})
}
