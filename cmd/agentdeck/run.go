package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/binpath"
	"github.com/agentdeck/agentdeck/broadcast"
	"github.com/agentdeck/agentdeck/eventbus"
	"github.com/agentdeck/agentdeck/headless"
	"github.com/agentdeck/agentdeck/provider"
	"github.com/agentdeck/agentdeck/relay"
	"github.com/agentdeck/agentdeck/settings"
	"github.com/agentdeck/agentdeck/transcript"
)

// stdoutTarget prints broadcast payloads, standing in for a UI consumer.
type stdoutTarget struct{}

func (stdoutTarget) ID() string      { return "stdout" }
func (stdoutTarget) Destroyed() bool { return false }

func (stdoutTarget) Send(channel string, payload interface{}) {
	switch p := payload.(type) {
	case eventbus.HookEvent:
		line := fmt.Sprintf("[%s] %s", p.AgentID, p.Event.Kind)
		if p.Event.ToolName != "" {
			line += " " + p.Event.ToolName
		}
		if p.Event.Message != "" {
			line += ": " + p.Event.Message
		}
		fmt.Println(line)
	case headless.ExitPayload:
		fmt.Printf("[%s] exited with code %d\n", p.AgentID, p.ExitCode)
	case headless.OutputPayload:
		fmt.Print(p.Data)
	}
}

func newRunCmd() *cobra.Command {
	var (
		providerID   string
		outputFormat string
		model        string
		workDir      string
		agentID      string
	)

	cmd := &cobra.Command{
		Use:   "run [flags] <prompt>",
		Short: "Run a one-shot headless agent session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := settings.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			bus := eventbus.New()
			broadcaster := broadcast.New(func() []broadcast.Target {
				return []broadcast.Target{stdoutTarget{}}
			})
			transcripts := transcript.NewManager(cfg.Transcript.Dir,
				transcript.WithMaxBytes(cfg.Transcript.MaxBytes),
				transcript.WithLogger(logger))
			registry := provider.NewRegistry(binpath.NewResolver(binpath.WithLogger(logger)))
			manager := headless.NewManager(registry, transcripts, bus, broadcaster,
				headless.WithLogger(logger))

			if cfg.Relay.Enabled {
				r, err := relay.Connect(cmd.Context(), cfg.Relay.URL, bus, relay.WithLogger(logger))
				if err != nil {
					logger.Warn("relay unavailable", "url", cfg.Relay.URL, "error", err)
				} else {
					defer r.Close()
				}
			}

			done := make(chan struct{})
			bus.SetActive(true)
			bus.SubscribeExit(func(ev eventbus.ExitEvent) {
				if ev.AgentID == agentID {
					close(done)
				}
			})

			pc := cfg.Provider(providerID)
			if model == "" {
				model = pc.Model
			}
			opts := headless.StartOptions{
				AgentID:    agentID,
				ProviderID: providerID,
				Spawn: provider.SpawnOptions{
					Prompt:       strings.Join(args, " "),
					Model:        model,
					WorkDir:      workDir,
					OutputFormat: provider.OutputFormat(outputFormat),
					ExtraArgs:    pc.ExtraArgs,
					Env:          pc.Env,
				},
			}
			if err := manager.Start(cmd.Context(), opts); err != nil {
				return err
			}

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupt)

			select {
			case <-done:
			case <-interrupt:
				logger.Info("interrupted, terminating session", "agent_id", agentID)
				_ = manager.Kill(agentID)
				<-done
			case <-cmd.Context().Done():
				_ = manager.Kill(agentID)
				return cmd.Context().Err()
			}
			broadcaster.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&providerID, "provider", "p", "claude", "Provider id (claude, codex, gemini, cursor)")
	cmd.Flags().StringVarP(&outputFormat, "output-format", "f", "", "Output interpretation: stream-json or text")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model override")
	cmd.Flags().StringVarP(&workDir, "work-dir", "d", "", "Working directory for the agent")
	cmd.Flags().StringVar(&agentID, "agent-id", "cli", "Agent id for the session")
	return cmd
}
