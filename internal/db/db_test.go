package db

import (
	"path/filepath"
	"testing"

	"github.com/bitrifttech/rose/internal/config"
	"github.com/bitrifttech/rose/internal/models"
)

func TestNewSQLiteAndMigrate(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}
	gdb, err := New(cfg, "silent")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer Close(gdb)

	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !gdb.Migrator().HasTable(&models.ProjectVersion{}) {
		t.Fatal("project_versions table missing")
	}

	first := models.ProjectVersion{ProjectID: 7, Content: []byte("a")}
	if err := gdb.Create(&first).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	second := models.ProjectVersion{ProjectID: 7, Content: []byte("b")}
	if err := gdb.Create(&second).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	other := models.ProjectVersion{ProjectID: 8, Content: []byte("c")}
	if err := gdb.Create(&other).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}

	if first.VersionNumber != 1 || second.VersionNumber != 2 || other.VersionNumber != 1 {
		t.Errorf("version numbers = %d, %d, %d; want 1, 2, 1",
			first.VersionNumber, second.VersionNumber, other.VersionNumber)
	}

	if first.Message != "Version 1" || second.Message != "Version 2" {
		t.Errorf("default messages = %q, %q", first.Message, second.Message)
	}

	dup := models.ProjectVersion{ProjectID: 7, VersionNumber: 2, Content: []byte("d")}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Error("expected unique index violation for duplicate version number")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(config.DatabaseConfig{Driver: "oracle"}, "info"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
