package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitrifttech/rose/internal/config"
	"github.com/bitrifttech/rose/internal/snapshot"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:    config.ServerConfig{Port: 0, Mode: "development", ShutdownTimeout: 5 * time.Second},
		Workspace: config.WorkspaceConfig{Root: filepath.Join(dir, "app")},
		Terminal:  config.TerminalConfig{Shell: "bash", Completion: "sentinel"},
		Process:   config.ProcessConfig{StopTimeout: time.Second, LogLines: 10},
		Snapshot:  config.SnapshotConfig{Target: "local"},
		Database:  config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "rose.db")},
		Log:       config.LogConfig{Format: "text", Level: "error"},
	}
}

func TestNewRuntimeLocal(t *testing.T) {
	cfg := testConfig(t)
	rt, err := NewRuntime(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close(context.Background())

	if _, err := os.Stat(cfg.Workspace.Root); err != nil {
		t.Fatalf("workspace root not created: %v", err)
	}
	if rt.Session.Live() {
		t.Error("terminal must not start eagerly")
	}

	if err := rt.Files.Write("index.js", "console.log(1)", false); err != nil {
		t.Fatal(err)
	}
	v, err := rt.Versions.Save(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v.VersionNumber != 1 || !v.IsActive {
		t.Errorf("version = %+v", v)
	}

	svc := rt.Services()
	if svc.Files != rt.Files || svc.Versions != rt.Versions || svc.Workspace != snapshot.Target(rt.Workspace) {
		t.Error("services do not expose the runtime components")
	}
}

func TestNewRuntimeRejectsBadDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	if _, err := NewRuntime(cfg, nil); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	root := filepath.Join(t.TempDir(), "ws")

	cfg, err := LoadConfig(Config{Port: 4100, Root: root})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 4100 || cfg.Workspace.Root != root {
		t.Errorf("overrides not applied: port=%d root=%q", cfg.Server.Port, cfg.Workspace.Root)
	}
}
