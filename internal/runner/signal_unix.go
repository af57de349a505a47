//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

func signalName(exitErr *exec.ExitError) string {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return status.Signal().String()
	}
	return ""
}
