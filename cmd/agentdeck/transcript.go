package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/settings"
	"github.com/agentdeck/agentdeck/transcript"
)

func newTranscriptCmd() *cobra.Command {
	var (
		offset int
		limit  int
		info   bool
	)

	cmd := &cobra.Command{
		Use:   "transcript <agent-id>",
		Short: "Read a session transcript page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			agentID := args[0]
			transcripts := transcript.NewManager(cfg.Transcript.Dir,
				transcript.WithMaxBytes(cfg.Transcript.MaxBytes),
				transcript.WithLogger(newLogger()))

			if info {
				ti, err := transcripts.Info(agentID)
				if err != nil {
					return err
				}
				fmt.Printf("events: %d\nevicted: %v\n", ti.TotalEvents, ti.Evicted)
				return nil
			}

			page, err := transcripts.Page(agentID, offset, limit)
			if err != nil {
				return err
			}
			for _, event := range page.Events {
				if _, err := fmt.Fprintf(os.Stdout, "%s\n", event); err != nil {
					return err
				}
			}
			if len(page.Events) < page.TotalEvents {
				fmt.Fprintf(os.Stderr, "showing %d-%d of %d events\n",
					offset, offset+len(page.Events), page.TotalEvents)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "First event index")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum events to return")
	cmd.Flags().BoolVar(&info, "info", false, "Print transcript summary instead of events")
	return cmd
}
