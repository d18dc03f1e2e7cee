package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/bitrifttech/rose/internal/archive"
)

// SettingsFile is the per-workspace settings file, kept at the workspace root.
//
// Format (TOML):
//
//	[install]
//	command = "pnpm install"
//	manifest = "package.json"
//	skip = false
//
//	[snapshot]
//	ignore = ["**/dist", "**/.cache"]
const SettingsFile = ".rose.toml"

// Settings overrides server defaults for one workspace.
type Settings struct {
	Install  InstallSettings  `toml:"install"`
	Snapshot SnapshotSettings `toml:"snapshot"`
}

// InstallSettings overrides the dependency install step.
type InstallSettings struct {
	Command  string `toml:"command,omitempty"`
	Manifest string `toml:"manifest,omitempty"`
	Skip     bool   `toml:"skip,omitempty"`
}

// SnapshotSettings adds archive ignore patterns.
type SnapshotSettings struct {
	Ignore []string `toml:"ignore,omitempty"`
}

// ReadSettings reads the settings file in dir. A missing file yields empty
// settings.
func ReadSettings(dir string) (*Settings, error) {
	data, err := os.ReadFile(filepath.Join(dir, SettingsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", SettingsFile, err)
	}

	var s Settings
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SettingsFile, err)
	}
	return &s, nil
}

// WriteSettings writes s to the settings file in dir.
func WriteSettings(dir string, s *Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", SettingsFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, SettingsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", SettingsFile, err)
	}
	return nil
}

// IgnorePatterns returns the archive ignore patterns for the workspace in dir:
// base (or archive.DefaultIgnore when empty) plus the workspace's own.
func IgnorePatterns(dir string, base []string) ([]string, error) {
	if len(base) == 0 {
		base = archive.DefaultIgnore
	}
	s, err := ReadSettings(dir)
	if err != nil {
		return nil, err
	}
	out := append([]string(nil), base...)
	return append(out, s.Snapshot.Ignore...), nil
}
