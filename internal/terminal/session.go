// Package terminal hosts the single interactive shell shared by every viewer
// of a workspace, and the one-shot command runner built on top of it.
package terminal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/bitrifttech/rose/internal/service"
	"github.com/bitrifttech/rose/internal/utils"
)

const (
	defaultCols       = 80
	defaultRows       = 24
	defaultBufferSize = 256
	readChunkSize     = 4096
	stopGrace         = 2 * time.Second
)

// Options configures the shell spawned for a Session.
type Options struct {
	// Shell is the shell binary. Empty means $SHELL, then bash.
	Shell string
	Args  []string
	// Cols and Rows are the initial terminal size.
	Cols uint16
	Rows uint16
	// BufferSize is the number of output chunks queued per subscriber before
	// that subscriber is evicted.
	BufferSize int
	// Env is appended to the server environment.
	Env []string
}

// Info describes the session for status responses and the socket greeting.
type Info struct {
	Live        bool   `json:"live"`
	Shell       string `json:"shell"`
	Cwd         string `json:"cwd"`
	PID         *int   `json:"pid"`
	Subscribers int    `json:"subscribers"`
	Cols        uint16 `json:"cols"`
	Rows        uint16 `json:"rows"`
}

// Subscription receives every output chunk emitted while it is registered.
type Subscription struct {
	ID     string
	ch     chan []byte
	closed bool
}

// Output is closed when the subscription is removed, evicted or the session ends.
func (s *Subscription) Output() <-chan []byte {
	return s.ch
}

type shell struct {
	ptmx *os.File
	cmd  *exec.Cmd
	done chan struct{}
}

// Session is the workspace's shared terminal. It is Absent until the first
// subscriber or an explicit Start, and Live until Stop or the shell exits.
type Session struct {
	opts   Options
	cwd    string
	logger *slog.Logger

	mu   sync.Mutex
	cur  *shell
	subs map[string]*Subscription
	cols uint16
	rows uint16
}

// NewSession creates an Absent session whose shell will run in cwd.
func NewSession(opts Options, cwd string, logger *slog.Logger) *Session {
	if opts.Shell == "" {
		opts.Shell = os.Getenv("SHELL")
	}
	if opts.Shell == "" {
		opts.Shell = "bash"
	}
	if opts.Cols == 0 {
		opts.Cols = defaultCols
	}
	if opts.Rows == 0 {
		opts.Rows = defaultRows
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opts:   opts,
		cwd:    cwd,
		logger: logger,
		subs:   make(map[string]*Subscription),
		cols:   opts.Cols,
		rows:   opts.Rows,
	}
}

// Start spawns the shell if the session is Absent. It is a no-op when Live.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.cur != nil {
		return nil
	}

	cmd := exec.Command(s.opts.Shell, s.opts.Args...)
	cmd.Dir = s.cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, s.opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: s.cols, Rows: s.rows})
	if err != nil {
		return fmt.Errorf("failed to start shell %s: %w", s.opts.Shell, err)
	}

	sh := &shell{ptmx: ptmx, cmd: cmd, done: make(chan struct{})}
	s.cur = sh
	go s.readLoop(sh)

	s.logger.Info("Terminal started", "shell", s.opts.Shell, "pid", cmd.Process.Pid, "cwd", s.cwd)
	return nil
}

// readLoop is the only reader of the pty. Chunks are delivered in emission
// order to every subscriber registered at delivery time.
func (s *Session) readLoop(sh *shell) {
	defer close(sh.done)

	buf := make([]byte, readChunkSize)
	for {
		n, err := sh.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.broadcast(sh, chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
				s.logger.Warn("Terminal read failed", "error", err)
			}
			break
		}
	}

	_ = sh.cmd.Wait()
	// Stop may have closed it already.
	_ = sh.ptmx.Close()

	s.mu.Lock()
	if s.cur == sh {
		// The shell exited on its own.
		s.teardownLocked()
		s.logger.Info("Terminal shell exited", "pid", sh.cmd.Process.Pid)
	}
	s.mu.Unlock()
}

func (s *Session) broadcast(sh *shell, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != sh {
		return
	}
	for id, sub := range s.subs {
		select {
		case sub.ch <- chunk:
		default:
			s.logger.Warn("Evicting slow terminal subscriber", "subscriber", id)
			s.closeSubLocked(sub)
		}
	}
}

// Subscribe registers a subscriber, starting the shell first if needed.
func (s *Session) Subscribe() (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s.addSubLocked(), nil
}

// SubscribeLive registers a subscriber only if the session is already Live.
func (s *Session) SubscribeLive() (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil, fmt.Errorf("terminal session not started: %w", service.ErrInvalidState)
	}
	return s.addSubLocked(), nil
}

func (s *Session) addSubLocked() *Subscription {
	sub := &Subscription{
		ID: uuid.New().String(),
		ch: make(chan []byte, s.opts.BufferSize),
	}
	s.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub. The session stays Live even with no subscribers.
func (s *Session) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSubLocked(sub)
}

func (s *Session) closeSubLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	delete(s.subs, sub.ID)
}

// Write sends p to the shell's input. Concurrent writers are not serialised
// and may interleave.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	sh := s.cur
	s.mu.Unlock()
	if sh == nil {
		return 0, fmt.Errorf("terminal session not started: %w", service.ErrInvalidState)
	}
	return sh.ptmx.Write(p)
}

// Resize sets the terminal size for every viewer. The last call wins.
func (s *Session) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return &service.ValidationError{Message: "cols and rows must be positive"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols, s.rows = cols, rows
	if s.cur == nil {
		return nil
	}
	if err := pty.Setsize(s.cur.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("failed to resize terminal: %w", err)
	}
	return nil
}

// Stop terminates the shell and closes every subscription. Stopping an
// Absent session does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	sh := s.cur
	if sh == nil {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked()
	s.mu.Unlock()

	pid := sh.cmd.Process.Pid
	// pty.Start puts the shell in its own session, so its pid is the group id.
	_ = utils.SignalGroup(pid, syscall.SIGHUP)
	_ = sh.ptmx.Close()

	select {
	case <-sh.done:
	case <-time.After(stopGrace):
		_ = utils.SignalGroup(pid, syscall.SIGKILL)
		select {
		case <-sh.done:
		case <-time.After(stopGrace):
			s.logger.Warn("Terminal reader did not exit after kill", "pid", pid)
		}
	}

	s.logger.Info("Terminal stopped", "pid", pid)
	return nil
}

func (s *Session) teardownLocked() {
	for _, sub := range s.subs {
		s.closeSubLocked(sub)
	}
	s.cur = nil
}

// Live reports whether a shell is running.
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Info returns the current session state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		Live:        s.cur != nil,
		Shell:       s.opts.Shell,
		Cwd:         s.cwd,
		Subscribers: len(s.subs),
		Cols:        s.cols,
		Rows:        s.rows,
	}
	if s.cur != nil {
		pid := s.cur.cmd.Process.Pid
		info.PID = &pid
	}
	return info
}
