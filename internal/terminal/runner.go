package terminal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
)

// Completion selects how the runner decides a command has finished.
type Completion string

const (
	// CompletionSentinel follows the command with a marker printf and waits
	// for it to appear in the output.
	CompletionSentinel Completion = "sentinel"
	// CompletionIdle waits for the output to go quiet.
	CompletionIdle Completion = "idle"
)

const (
	defaultIdleTimeout = time.Second
	defaultCeiling     = 5 * time.Second
	markerPrefix       = "__ROSE_"
)

// RunnerOptions configures command completion.
type RunnerOptions struct {
	Completion  Completion
	IdleTimeout time.Duration
	Ceiling     time.Duration
}

// Result is the outcome of a command run through the shared terminal.
type Result struct {
	Output   string `json:"output"`
	ExitCode *int   `json:"exitCode,omitempty"`
	TimedOut bool   `json:"timedOut"`
}

// Runner executes one-shot commands against a live Session. Runs are not
// ordered with respect to each other or to interactive input.
type Runner struct {
	session *Session
	opts    RunnerOptions
}

// NewRunner creates a runner for session.
func NewRunner(session *Session, opts RunnerOptions) *Runner {
	if opts.Completion == "" {
		opts.Completion = CompletionSentinel
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = defaultCeiling
	}
	return &Runner{session: session, opts: opts}
}

// Run types command into the shared terminal and collects what it prints.
// It returns service.ErrInvalidState when no session is live. Run does not
// serialise against socket input; concurrent writers interleave.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	sub, err := r.session.SubscribeLive()
	if err != nil {
		return Result{}, err
	}
	defer r.session.Unsubscribe(sub)

	var (
		line   = command
		tag    string
		marker *regexp.Regexp
	)
	if r.opts.Completion == CompletionSentinel {
		token := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
		// The command is grouped on its own line so a trailing '&' or comment
		// cannot swallow the marker. The marker is split in the typed text so
		// only the output contains it.
		line = fmt.Sprintf("{ %s\n}; printf '%%s%%s:%%s\\n' '%s' '%s__' \"$?\"", command, markerPrefix, token)
		tag = markerPrefix + token + "__:"
		marker = regexp.MustCompile(regexp.QuoteMeta(tag) + `(\d+)\r?\n`)
	}

	if _, err := r.session.Write([]byte(line + "\n")); err != nil {
		return Result{}, fmt.Errorf("failed to write command: %w", err)
	}

	ceiling := time.NewTimer(r.opts.Ceiling)
	defer ceiling.Stop()
	idle := time.NewTimer(r.opts.IdleTimeout)
	defer idle.Stop()

	var raw strings.Builder
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()

		case chunk, ok := <-sub.Output():
			if !ok {
				// Session stopped or this subscription was evicted.
				return r.finish(raw.String(), command, tag, nil, false), nil
			}
			raw.Write(chunk)
			if marker != nil {
				if code, ok := findExit(marker, raw.String()); ok {
					return r.finish(raw.String(), command, tag, &code, false), nil
				}
				continue
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.opts.IdleTimeout)

		case <-idle.C:
			if marker == nil {
				return r.finish(raw.String(), command, tag, nil, false), nil
			}

		case <-ceiling.C:
			return r.finish(raw.String(), command, tag, nil, marker != nil), nil
		}
	}
}

func findExit(marker *regexp.Regexp, raw string) (int, bool) {
	m := marker.FindStringSubmatch(ansi.Strip(raw))
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

func (r *Runner) finish(raw, command, marker string, exit *int, timedOut bool) Result {
	return Result{
		Output:   cleanOutput(raw, command, marker),
		ExitCode: exit,
		TimedOut: timedOut,
	}
}

// cleanOutput strips escape sequences, the echoed command line and the
// completion marker from raw terminal output. marker is empty in idle mode.
func cleanOutput(raw, command, marker string) string {
	text := ansi.Strip(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")

	if marker != "" {
		if i := strings.Index(text, marker); i >= 0 {
			text = text[:i]
		}
		// The command may be echoed more than once if it was typed before
		// the prompt appeared, the last echo precedes the output.
		if i := strings.LastIndex(text, `"$?"`); i >= 0 {
			text = afterLine(text, i)
		}
		return strings.TrimRight(text, "\n")
	}

	if first := strings.TrimSpace(firstLine(command)); first != "" {
		if i := strings.Index(text, first); i >= 0 {
			text = afterLine(text, i)
		}
	}
	return strings.TrimRight(text, "\n")
}

// afterLine returns the text following the line that contains offset i.
func afterLine(text string, i int) string {
	if nl := strings.IndexByte(text[i:], '\n'); nl >= 0 {
		return text[i+nl+1:]
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
