package provider

import "github.com/agentdeck/agentdeck/binpath"

// Gemini integrates the Gemini CLI. Its headless mode emits plain text, so
// sessions built on it run in text output mode: no hooks, no structured
// adapter, no resume.
type Gemini struct {
	descriptor
}

// NewGemini constructs the Gemini provider descriptor.
func NewGemini(resolver *binpath.Resolver) *Gemini {
	return &Gemini{descriptor: descriptor{
		resolver:    resolver,
		id:          "gemini",
		displayName: "Gemini CLI",
		conventions: Conventions{
			ConfigDir:        ".gemini",
			InstructionsFile: "GEMINI.md",
			MCPConfigFile:    "settings.json",
			SettingsFormat:   SettingsJSON,
		},
		caps: Capabilities{
			Headless: true,
		},
		candidates: []string{"gemini"},
		wellKnownPaths: []string{
			"~/.local/bin/gemini",
			"/usr/local/bin/gemini",
			"/opt/homebrew/bin/gemini",
		},
		models: []ModelOption{
			{ID: "gemini-2.5-pro", Label: "Gemini 2.5 Pro", Default: true},
			{ID: "gemini-2.5-flash", Label: "Gemini 2.5 Flash"},
		},
	}}
}

// BuildSpawnCommand builds the interactive invocation.
func (p *Gemini) BuildSpawnCommand(opts SpawnOptions) (SpawnCommand, error) {
	var args []string
	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)
	return SpawnCommand{Binary: "gemini", Args: args, Env: opts.Env}, nil
}

// BuildHeadlessCommand builds the one-shot invocation. Output is always
// plain text regardless of the requested format; callers see the downgrade
// through the Capabilities and the session's synthetic notification.
func (p *Gemini) BuildHeadlessCommand(opts SpawnOptions) (SpawnCommand, error) {
	args := []string{"-p", opts.Prompt}
	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)
	return SpawnCommand{Binary: "gemini", Args: args, Env: opts.Env}, nil
}

// ParseHookEvent always reports unrecognized: Gemini emits no hook payloads.
func (p *Gemini) ParseHookEvent(raw []byte) (HookEvent, bool) {
	return HookEvent{}, false
}

// CreateStructuredAdapter reports structured mode as unsupported.
func (p *Gemini) CreateStructuredAdapter() (StructuredAdapter, error) {
	return nil, ErrStructuredUnsupported
}
