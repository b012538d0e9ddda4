//go:build windows

package procattr

import "os"

// Terminate stops the process. Windows has no SIGTERM equivalent for
// console-less children, so Kill is the polite option available.
func Terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
