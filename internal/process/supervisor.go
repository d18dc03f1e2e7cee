// Package process supervises the single user application process of a
// workspace.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/bitrifttech/rose/internal/logstream"
	"github.com/bitrifttech/rose/internal/service"
	"github.com/bitrifttech/rose/internal/utils"
)

const (
	defaultCommand     = "npm"
	defaultStopTimeout = 10 * time.Second
	defaultLogLines    = 500
	defaultWaitDelay   = time.Second
)

var defaultArgs = []string{"start"}

// Options configures a Supervisor.
type Options struct {
	StopTimeout time.Duration
	// WaitDelay bounds how long output pipes held open by escaped
	// descendants keep a dead process from being reaped.
	WaitDelay time.Duration
	LogLines  int
	Env       []string
}

// Status describes the supervised process.
type Status struct {
	Running   bool       `json:"running"`
	PID       *int       `json:"pid"`
	Command   string     `json:"command,omitempty"`
	Args      []string   `json:"args,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

type handle struct {
	cmd       *exec.Cmd
	command   string
	args      []string
	startedAt time.Time
	exited    chan struct{}
	stopping  bool
}

func (h *handle) status() Status {
	pid := h.cmd.Process.Pid
	started := h.startedAt
	return Status{
		Running:   true,
		PID:       &pid,
		Command:   h.command,
		Args:      h.args,
		StartedAt: &started,
	}
}

// Supervisor owns a slot holding at most one running application process.
type Supervisor struct {
	dir    string
	opts   Options
	logger *slog.Logger
	broker *logstream.LogBroker
	remote io.Writer
	ring   *logstream.Ring

	mu   sync.Mutex
	slot *handle
}

// NewSupervisor creates a supervisor running processes in dir. broker and
// remote may be nil.
func NewSupervisor(dir string, opts Options, logger *slog.Logger, broker *logstream.LogBroker, remote io.Writer) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.LogLines <= 0 {
		opts.LogLines = defaultLogLines
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = defaultWaitDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		dir:    dir,
		opts:   opts,
		logger: logger,
		broker: broker,
		remote: remote,
		ring:   logstream.NewRing(opts.LogLines),
	}
}

// Start launches command in its own process group. An empty command means
// `npm start`. It fails with a ConflictError if a process is already running.
func (s *Supervisor) Start(command string, args []string) (Status, error) {
	if command == "" {
		command, args = defaultCommand, defaultArgs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot != nil {
		return Status{}, &service.ConflictError{Message: "Server is already running"}
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = s.dir
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.WaitDelay = s.opts.WaitDelay
	utils.NewProcessGroup(cmd)

	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return Status{}, fmt.Errorf("failed to start %s: %w", command, err)
	}

	h := &handle{
		cmd:       cmd,
		command:   command,
		args:      append([]string(nil), args...),
		startedAt: time.Now(),
		exited:    make(chan struct{}),
	}
	s.slot = h
	s.ring.Reset()

	var pumps sync.WaitGroup
	pumps.Add(2)
	go s.pump(&pumps, stdout, "App output", slog.LevelInfo)
	go s.pump(&pumps, stderr, "App error", slog.LevelError)
	go s.wait(h, &pumps, stdoutW, stderrW)

	s.logger.Info("Server started", "pid", cmd.Process.Pid, "command", command, "args", args)
	return h.status(), nil
}

func (s *Supervisor) pump(wg *sync.WaitGroup, r io.Reader, msg string, level slog.Level) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Log(context.Background(), level, msg, "line", line)
		s.ring.Add(line)
		if s.broker != nil {
			s.broker.Publish(logstream.TopicApp, line)
		}
		if s.remote != nil {
			_, _ = s.remote.Write([]byte(line))
		}
	}
	// Keep the pipe flowing if the scanner gave up on an oversized line.
	_, _ = io.Copy(io.Discard, r)
}

// wait reaps the process and clears the slot if it still holds h.
func (s *Supervisor) wait(h *handle, pumps *sync.WaitGroup, writers ...io.Closer) {
	// Wait returns at most WaitDelay after the process exits, even when a
	// descendant still holds the output pipes.
	err := h.cmd.Wait()
	for _, w := range writers {
		w.Close()
	}
	pumps.Wait()
	close(h.exited)

	s.mu.Lock()
	if s.slot == h {
		s.slot = nil
	}
	s.mu.Unlock()

	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	s.logger.Info("Server exited", "pid", h.cmd.Process.Pid, "code", code, "error", err)
}

// Stop sends SIGTERM to the process group, escalating to SIGKILL after the
// stop timeout, and clears the slot. It fails with a ConflictError if no
// process is running. The supervisor stays usable for Status while the
// process winds down; a concurrent Stop waits for the same exit.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	h := s.slot
	if h == nil {
		s.mu.Unlock()
		return &service.ConflictError{Message: "No server is running"}
	}
	pid := h.cmd.Process.Pid
	if h.stopping {
		s.mu.Unlock()
		select {
		case <-h.exited:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.stopping = true
	s.mu.Unlock()

	if err := utils.SignalGroup(pid, syscall.SIGTERM); err != nil {
		s.mu.Lock()
		h.stopping = false
		s.mu.Unlock()
		return fmt.Errorf("failed to stop server: %w", err)
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-h.exited:
	case <-timer.C:
		s.logger.Warn("Server did not exit after SIGTERM, killing", "pid", pid)
		_ = utils.SignalGroup(pid, syscall.SIGKILL)
		<-h.exited
	case <-ctx.Done():
		_ = utils.SignalGroup(pid, syscall.SIGKILL)
		<-h.exited
	}

	s.mu.Lock()
	if s.slot == h {
		s.slot = nil
	}
	s.mu.Unlock()
	s.logger.Info("Server stopped", "pid", pid)
	return nil
}

// Status reports the supervised process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return Status{Running: false}
	}
	return s.slot.status()
}

// Logs returns the most recent output lines of the current or last process.
func (s *Supervisor) Logs() []string {
	return s.ring.Lines()
}
