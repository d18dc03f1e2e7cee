package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bitrifttech/rose/internal/models"
	"github.com/bitrifttech/rose/internal/snapshot"
)

// SaveVersionRequest is the optional body of POST /projects/{id}/versions.
type SaveVersionRequest struct {
	Message string `json:"message"`
}

// RestoreVersionResponse is returned by a version restore.
type RestoreVersionResponse struct {
	Version *models.ProjectVersion `json:"version"`
	Warning string                 `json:"warning,omitempty"`
}

// VersionHandler serves project snapshots.
type VersionHandler struct {
	manager *snapshot.Manager
}

// NewVersionHandler creates a new VersionHandler
func NewVersionHandler(manager *snapshot.Manager) *VersionHandler {
	return &VersionHandler{manager: manager}
}

// List returns a project's versions, newest first.
func (h *VersionHandler) List(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}
	versions, err := h.manager.List(c.Request.Context(), projectID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// Save snapshots the live workspace as the project's next version.
func (h *VersionHandler) Save(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}
	var req SaveVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	version, err := h.manager.Save(c.Request.Context(), projectID, req.Message)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

// Get returns one version's metadata.
func (h *VersionHandler) Get(c *gin.Context) {
	projectID, versionNumber, ok := versionParams(c)
	if !ok {
		return
	}
	version, err := h.manager.Get(c.Request.Context(), projectID, versionNumber)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

// Archive returns the zip stored for one version.
func (h *VersionHandler) Archive(c *gin.Context) {
	projectID, versionNumber, ok := versionParams(c)
	if !ok {
		return
	}
	data, err := h.manager.Content(c.Request.Context(), projectID, versionNumber)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	filename := fmt.Sprintf("project-%d-v%d.zip", projectID, versionNumber)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", data)
}

// Restore replaces the workspace with one version and makes it active.
func (h *VersionHandler) Restore(c *gin.Context) {
	projectID, versionNumber, ok := versionParams(c)
	if !ok {
		return
	}
	result, err := h.manager.Restore(c.Request.Context(), projectID, versionNumber)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, RestoreVersionResponse{Version: result.Version, Warning: result.Warning})
}

func projectParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid project ID"})
		return 0, false
	}
	return uint(id), true
}

func versionParams(c *gin.Context) (uint, int, bool) {
	projectID, ok := projectParam(c)
	if !ok {
		return 0, 0, false
	}
	n, err := strconv.Atoi(c.Param("version"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid version number"})
		return 0, 0, false
	}
	return projectID, n, true
}
