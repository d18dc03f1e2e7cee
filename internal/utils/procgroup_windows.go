//go:build windows

package utils

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func NewProcessGroup(cmd *exec.Cmd) {}

// SignalGroup kills the process. Windows has no process group signals.
func SignalGroup(pid int, sig syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	return p.Kill()
}
