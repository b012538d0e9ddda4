//go:build linux

// Package procattr provides platform-specific subprocess spawn shaping:
// argv vs interpreter command lines, process groups, orphan prevention.
package procattr

import (
	"context"
	"os/exec"
	"syscall"
)

// Command builds an exec.Cmd that invokes binary directly with an argv
// array. No shell is involved on POSIX platforms.
func Command(ctx context.Context, binary string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, binary, args...)
}

// Set configures process group and parent-death signal for subprocess
// orphan prevention. On Linux, Pdeathsig causes the child to receive SIGTERM
// when the parent process dies (e.g. OOM kill, SIGKILL).
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
