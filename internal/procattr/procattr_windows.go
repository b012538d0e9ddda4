//go:build windows

// Package procattr provides platform-specific subprocess spawn shaping:
// argv vs interpreter command lines, process groups, orphan prevention.
package procattr

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
)

// Command builds an exec.Cmd that runs binary through the command
// interpreter. The binary and every argument are folded into one command
// line, with whitespace-containing arguments individually quoted, and the
// line is passed verbatim (CmdLine) so cmd.exe does not re-interpret the
// quoting.
func Command(ctx context.Context, binary string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "cmd.exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: "/d /s /c " + buildCommandLine(binary, args),
	}
	return cmd
}

// Set configures a new process group so the whole child tree can be
// signalled together.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// buildCommandLine joins binary and args into a single cmd.exe command line,
// quoting only the pieces that contain whitespace.
func buildCommandLine(binary string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteIfNeeded(binary))
	for _, a := range args {
		parts = append(parts, quoteIfNeeded(a))
	}
	return strings.Join(parts, " ")
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
