package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bitrifttech/rose/internal/logstream"
	"github.com/bitrifttech/rose/internal/service"
	"github.com/bitrifttech/rose/internal/utils"
)

const (
	defaultInstallCommand = "npm install"
	defaultManifest       = "package.json"
	defaultOutputLimit    = 16 * 1024
	installWaitDelay      = time.Second
)

// InstallOptions configures the dependency install step.
type InstallOptions struct {
	Command     string
	Manifest    string
	Env         []string
	OutputLimit int
}

// InstallReport describes one install step.
type InstallReport struct {
	Ran      bool   `json:"ran"`
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// Installer runs the workspace's dependency install command.
type Installer struct {
	opts   InstallOptions
	logger *slog.Logger
	broker *logstream.LogBroker
}

// NewInstaller creates an installer. broker may be nil.
func NewInstaller(opts InstallOptions, logger *slog.Logger, broker *logstream.LogBroker) *Installer {
	if opts.Command == "" {
		opts.Command = defaultInstallCommand
	}
	if opts.Manifest == "" {
		opts.Manifest = defaultManifest
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = defaultOutputLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{opts: opts, logger: logger, broker: broker}
}

// Install runs the install command in dir when the manifest exists. A failing
// command is reported through InstallReport.Warning, only cancellation and
// settings errors are returned as errors. Cancellation kills the whole
// process group.
func (i *Installer) Install(ctx context.Context, dir string) (InstallReport, error) {
	settings, err := ReadSettings(dir)
	if err != nil {
		return InstallReport{}, err
	}
	if settings.Install.Skip {
		return InstallReport{}, nil
	}

	command, manifest := i.opts.Command, i.opts.Manifest
	if settings.Install.Command != "" {
		command = settings.Install.Command
	}
	if settings.Install.Manifest != "" {
		manifest = settings.Install.Manifest
	}

	if _, err := os.Stat(filepath.Join(dir, manifest)); err != nil {
		if os.IsNotExist(err) {
			return InstallReport{}, nil
		}
		return InstallReport{}, fmt.Errorf("failed to stat %s: %w", manifest, err)
	}

	if strings.TrimSpace(command) == "" {
		return InstallReport{}, nil
	}

	report := InstallReport{Ran: true, Command: command}
	var output bytes.Buffer
	var sink io.Writer = &output
	var stream *logstream.StreamWriter
	if i.broker != nil {
		stream = logstream.NewStreamWriter(logstream.TopicInstall, i.broker, &output)
		sink = stream
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "NODE_ENV=development")
	cmd.Env = append(cmd.Env, i.opts.Env...)
	cmd.Stdout = sink
	cmd.Stderr = sink
	utils.NewProcessGroup(cmd)
	cmd.Cancel = func() error { return utils.SignalGroup(cmd.Process.Pid, syscall.SIGKILL) }
	cmd.WaitDelay = installWaitDelay

	i.logger.Info("Installing dependencies", "command", command, "dir", dir)
	runErr := cmd.Run()
	if stream != nil {
		stream.Flush()
	}
	report.Output = utils.Tail(output.String(), i.opts.OutputLimit)

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	if runErr != nil {
		upstream := &service.UpstreamError{Step: command, ExitCode: -1, Output: report.Output}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			upstream.ExitCode = exitErr.ExitCode()
		} else {
			report.Output = strings.TrimSpace(report.Output + "\n" + runErr.Error())
		}
		report.ExitCode = upstream.ExitCode
		report.Warning = upstream.Error()
		i.logger.Warn("Dependency install failed", "command", command, "code", upstream.ExitCode, "error", runErr)
		return report, nil
	}

	i.logger.Info("Dependencies installed", "command", command)
	return report, nil
}
