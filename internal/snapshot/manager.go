// Package snapshot versions a project's workspace tree in the database.
package snapshot

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/bitrifttech/rose/internal/models"
	"github.com/bitrifttech/rose/internal/service"
	"github.com/bitrifttech/rose/internal/workspace"
)

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Version *models.ProjectVersion `json:"version"`
	Report  workspace.Report       `json:"report"`
	Warning string                 `json:"warning,omitempty"`
}

// Manager saves and restores versions of a project's workspace. Save and
// Restore on one Manager are serialised.
type Manager struct {
	db     *gorm.DB
	target Target
	logger *slog.Logger

	mu sync.Mutex
}

// NewManager creates a Manager storing versions in db.
func NewManager(db *gorm.DB, target Target, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{db: db, target: target, logger: logger}
}

// Save archives the workspace as the next version of projectID and makes it
// the only active one. An empty message becomes "Version N".
func (m *Manager) Save(ctx context.Context, projectID uint, message string) (*models.ProjectVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.target.Archive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to archive workspace: %w", err)
	}

	version := &models.ProjectVersion{
		ProjectID:   projectID,
		Content:     data,
		ContentHash: fmt.Sprintf("%x", sha256.Sum256(data)),
		SizeBytes:   int64(len(data)),
		Message:     message,
		IsActive:    true,
	}

	// The version number and default message are assigned by the model's
	// BeforeCreate hook inside this transaction.
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return err
		}
		return tx.Model(&models.ProjectVersion{}).
			Where("project_id = ? AND id <> ?", projectID, version.ID).
			Update("is_active", false).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, &service.ConflictError{Message: "a concurrent save created the same version, retry"}
		}
		return nil, fmt.Errorf("failed to save version: %w", err)
	}

	m.logger.Info("Saved project version",
		"project_id", projectID,
		"version", version.VersionNumber,
		"size_bytes", version.SizeBytes)
	return version, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// Restore replaces the workspace with version versionNumber of projectID and
// makes it the only active version. The active flag is not moved if the
// workspace could not be restored.
func (m *Manager) Restore(ctx context.Context, projectID uint, versionNumber int) (*RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var version models.ProjectVersion
	if err := m.db.WithContext(ctx).
		Where("project_id = ? AND version_number = ?", projectID, versionNumber).
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.NotFoundf("version %d of project %d", versionNumber, projectID)
		}
		return nil, fmt.Errorf("failed to load version: %w", err)
	}

	report, err := m.target.Restore(ctx, version.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to restore version %d: %w", versionNumber, err)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ProjectVersion{}).
			Where("project_id = ? AND id <> ?", projectID, version.ID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&version).Update("is_active", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate version %d: %w", versionNumber, err)
	}
	version.Content = nil

	m.logger.Info("Restored project version",
		"project_id", projectID,
		"version", versionNumber,
		"warning", report.Warning)
	return &RestoreResult{Version: &version, Report: report, Warning: report.Warning}, nil
}

// List returns the versions of projectID without content, newest first.
func (m *Manager) List(ctx context.Context, projectID uint) ([]models.ProjectVersion, error) {
	var versions []models.ProjectVersion
	if err := m.db.WithContext(ctx).
		Omit("content").
		Where("project_id = ?", projectID).
		Order("version_number DESC").
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// Get returns one version without content.
func (m *Manager) Get(ctx context.Context, projectID uint, versionNumber int) (*models.ProjectVersion, error) {
	var version models.ProjectVersion
	if err := m.db.WithContext(ctx).
		Omit("content").
		Where("project_id = ? AND version_number = ?", projectID, versionNumber).
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.NotFoundf("version %d of project %d", versionNumber, projectID)
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &version, nil
}

// Content returns the archived zip of one version.
func (m *Manager) Content(ctx context.Context, projectID uint, versionNumber int) ([]byte, error) {
	var version models.ProjectVersion
	if err := m.db.WithContext(ctx).
		Select("content").
		Where("project_id = ? AND version_number = ?", projectID, versionNumber).
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, service.NotFoundf("version %d of project %d", versionNumber, projectID)
		}
		return nil, fmt.Errorf("failed to load version content: %w", err)
	}
	return version.Content, nil
}
