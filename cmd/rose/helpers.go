package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/bitrifttech/rose/internal/logger"
	"github.com/bitrifttech/rose/internal/server"
)

// openRuntime builds the workspace runtime for a CLI command. Logs are only
// shown at warn level and above so command output stays readable.
func openRuntime(root string) (*server.Runtime, error) {
	cfg, err := server.LoadConfig(server.Config{Root: root})
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if logger.ParseLevel(level) < slog.LevelWarn {
		level = "warn"
	}
	cfg.Log.Level = level
	log := logger.Init(cfg.Log.Format, level)
	return server.NewRuntime(cfg, log)
}

// parseProjectID parses a positive project id argument.
func parseProjectID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid project id %q", s)
	}
	return uint(id), nil
}

// parseVersion parses a version number argument, accepting an optional "v" prefix.
func parseVersion(s string) (int, error) {
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') {
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return n, nil
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// printWarning writes a restore or install warning in a consistent form.
func printWarning(w io.Writer, warning string) {
	if warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}
