package terminal

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/bitrifttech/rose/internal/service"
)

func testSession(t *testing.T, opts Options) *Session {
	t.Helper()
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	opts.Shell = bash
	opts.Args = []string{"--norc", "--noprofile"}
	opts.Env = append(opts.Env, "PS1=$ ")
	s := NewSession(opts, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

// waitFor reads sub until the accumulated output contains want.
func waitFor(t *testing.T, sub *Subscription, want string) string {
	t.Helper()
	var got strings.Builder
	deadline := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-sub.Output():
			if !ok {
				t.Fatalf("subscription closed before %q appeared, got %q", want, got.String())
			}
			got.Write(chunk)
			if strings.Contains(got.String(), want) {
				return got.String()
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %q", want, got.String())
		}
	}
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-sub.Output():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription was not closed")
		}
	}
}

func TestSubscribeStartsSession(t *testing.T) {
	s := testSession(t, Options{})

	if s.Live() {
		t.Fatal("new session should be Absent")
	}
	sub, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !s.Live() {
		t.Fatal("session should be Live after Subscribe")
	}
	info := s.Info()
	if info.PID == nil || info.Subscribers != 1 || info.Cols != 80 || info.Rows != 24 {
		t.Errorf("unexpected info: %+v", info)
	}
	s.Unsubscribe(sub)
}

func TestFanOutToAllSubscribers(t *testing.T) {
	s := testSession(t, Options{})

	a, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	b, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}

	if _, err := s.Write([]byte("echo fan-$((40+2))\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitFor(t, a, "fan-42")
	waitFor(t, b, "fan-42")
}

func TestUnsubscribeKeepsSessionLive(t *testing.T) {
	s := testSession(t, Options{})

	sub, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	s.Unsubscribe(sub)
	s.Unsubscribe(sub)

	if !s.Live() {
		t.Fatal("session must survive its last subscriber leaving")
	}
	if _, ok := <-sub.Output(); ok {
		t.Error("unsubscribed channel should be closed")
	}
}

func TestSubscribeLiveRequiresLiveSession(t *testing.T) {
	s := testSession(t, Options{})

	if _, err := s.SubscribeLive(); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := s.Write([]byte("ls\n")); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("Write: expected ErrInvalidState, got %v", err)
	}
}

func TestStopClosesSubscriptions(t *testing.T) {
	s := testSession(t, Options{})

	sub, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitClosed(t, sub)
	if s.Live() {
		t.Fatal("session should be Absent after Stop")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop on Absent session: %v", err)
	}

	// A new subscriber starts a fresh shell.
	sub2, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe after Stop: %v", err)
	}
	if _, err := s.Write([]byte("echo again\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitFor(t, sub2, "again")
}

func TestShellExitReturnsToAbsent(t *testing.T) {
	s := testSession(t, Options{})

	sub, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := s.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitClosed(t, sub)

	deadline := time.Now().Add(5 * time.Second)
	for s.Live() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Live() {
		t.Fatal("session should be Absent after the shell exits")
	}
}

func TestShellExitReleasesPty(t *testing.T) {
	if _, err := os.ReadDir("/proc/self/fd"); err != nil {
		t.Skip("/proc/self/fd not available")
	}
	openFDs := func() int {
		entries, err := os.ReadDir("/proc/self/fd")
		if err != nil {
			t.Fatal(err)
		}
		return len(entries)
	}

	s := testSession(t, Options{})
	before := openFDs()
	for i := 0; i < 5; i++ {
		sub, err := s.Subscribe()
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if _, err := s.Write([]byte("exit\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		waitClosed(t, sub)
		deadline := time.Now().Add(5 * time.Second)
		for s.Live() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for openFDs() > before+1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if after := openFDs(); after > before+1 {
		t.Errorf("open fds grew from %d to %d across shell exits", before, after)
	}
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	s := testSession(t, Options{BufferSize: 1})

	slow, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe slow: %v", err)
	}
	fast, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe fast: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range fast.Output() {
		}
	}()

	if _, err := s.Write([]byte("for i in $(seq 1 500); do echo line-$i; done\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitClosed(t, slow)

	if !s.Live() {
		t.Fatal("evicting a subscriber must not stop the session")
	}
	_ = s.Stop()
	<-done
}

func TestResize(t *testing.T) {
	s := testSession(t, Options{})

	var ve *service.ValidationError
	if err := s.Resize(0, 10); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// Resizing an Absent session sets the size for the next start.
	if err := s.Resize(120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	sub, err := s.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := s.Write([]byte("stty size\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitFor(t, sub, "40 120")

	if err := s.Resize(100, 30); err != nil {
		t.Fatalf("Resize live: %v", err)
	}
	if info := s.Info(); info.Cols != 100 || info.Rows != 30 {
		t.Errorf("size = %dx%d, want 100x30", info.Cols, info.Rows)
	}
}
