package provider

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/binpath"
)

// versionTimeout bounds the --version probe during availability checks.
const versionTimeout = 5 * time.Second

// descriptor carries the immutable per-tool facts shared by all variants
// and implements the Provider methods that are pure lookups. Variants embed
// it and add command building, hook parsing, and adapters.
type descriptor struct {
	resolver       *binpath.Resolver
	id             string
	displayName    string
	conventions    Conventions
	candidates     []string
	wellKnownPaths []string
	models         []ModelOption
	toolVerbs      map[string]string
	permissions    map[string][]string
	caps           Capabilities
}

func (d *descriptor) ID() string                 { return d.id }
func (d *descriptor) DisplayName() string        { return d.displayName }
func (d *descriptor) Conventions() Conventions   { return d.conventions }
func (d *descriptor) Capabilities() Capabilities { return d.caps }

func (d *descriptor) ModelOptions() []ModelOption {
	return append([]ModelOption(nil), d.models...)
}

// CheckAvailability resolves the binary and probes its version. Absence is
// reported in the value; this never returns an error.
func (d *descriptor) CheckAvailability(ctx context.Context) Availability {
	path, err := d.resolver.Resolve(ctx, d.candidates, d.wellKnownPaths)
	if err != nil {
		return Availability{Err: err.Error()}
	}
	return Availability{Available: true, Path: path, Version: probeVersion(ctx, path)}
}

// DefaultPermissions returns the tools auto-approved under the given
// permission kind. Unknown kinds return nil.
func (d *descriptor) DefaultPermissions(kind string) []string {
	return append([]string(nil), d.permissions[kind]...)
}

// ToolVerb maps a tool name to a display verb, falling back to "Running".
func (d *descriptor) ToolVerb(name string) string {
	if verb, ok := d.toolVerbs[name]; ok {
		return verb
	}
	return "Running"
}

func (d *descriptor) ReadInstructions(dir string) (string, error) {
	return readInstructionsFile(dir, d.conventions.InstructionsFile)
}

func (d *descriptor) WriteInstructions(dir, content string) error {
	return writeInstructionsFile(dir, d.conventions.InstructionsFile, content)
}

// probeVersion runs `<path> --version` timeboxed; failure is non-fatal and
// yields an empty version.
func probeVersion(ctx context.Context, path string) string {
	probeCtx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, path, "--version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
