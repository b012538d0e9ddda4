//go:build !linux && !windows

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

// Set configures process group for subprocess orphan prevention.
// Pdeathsig is Linux-only; Setpgid still enables kill -<signal> -<pgid>
// cleanup by the parent.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
