package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectVersion is an archived snapshot of a project's workspace tree.
// Exactly one version per project is active once the project has any.
type ProjectVersion struct {
	ID        uuid.UUID `gorm:"type:text;primary_key" json:"id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_project_version" json:"project_id"`

	// Version tracking, strictly increasing per project from 1
	VersionNumber int `gorm:"not null;uniqueIndex:idx_project_version" json:"version_number"`

	// Zip archive of the workspace
	Content     []byte `gorm:"not null" json:"-"`
	ContentHash string `gorm:"type:text;index" json:"content_hash"`
	SizeBytes   int64  `gorm:"default:0" json:"size_bytes"`

	Message  string `gorm:"type:text" json:"message"`
	IsActive bool   `gorm:"not null;default:false;index" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName ensures GORM uses the "project_versions" table
func (ProjectVersion) TableName() string {
	return "project_versions"
}

// BeforeCreate hook to generate UUID, version number and default message.
// Callers run it inside the transaction that deactivates older versions.
func (pv *ProjectVersion) BeforeCreate(tx *gorm.DB) error {
	if pv.ID == uuid.Nil {
		pv.ID = uuid.New()
	}

	if pv.VersionNumber == 0 {
		var maxVersion struct {
			MaxVersion *int
		}
		if err := tx.Model(&ProjectVersion{}).
			Select("MAX(version_number) as max_version").
			Where("project_id = ?", pv.ProjectID).
			Scan(&maxVersion).Error; err != nil {
			return err
		}

		if maxVersion.MaxVersion == nil {
			pv.VersionNumber = 1
		} else {
			pv.VersionNumber = *maxVersion.MaxVersion + 1
		}
	}

	if pv.Message == "" {
		pv.Message = fmt.Sprintf("Version %d", pv.VersionNumber)
	}

	return nil
}
