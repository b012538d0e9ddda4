package main

import (
	"context"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentdeck/agentdeck/binpath"
	"github.com/agentdeck/agentdeck/provider"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Probe and list the supported agent CLIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			registry := provider.NewRegistry(binpath.NewResolver(binpath.WithLogger(newLogger())))
			statuses := registry.CheckAll(ctx)

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			if term.IsTerminal(int(os.Stdout.Fd())) {
				tw.SetStyle(table.StyleRounded)
			} else {
				tw.SetStyle(table.StyleDefault)
			}
			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 1, Align: text.AlignLeft},
				{Number: 2, Align: text.AlignCenter},
				{Number: 3, Align: text.AlignLeft},
				{Number: 4, Align: text.AlignLeft, WidthMax: 60},
			})
			tw.AppendHeader(table.Row{"Provider", "Available", "Version", "Path"})

			for _, st := range statuses {
				available := "no"
				detail := st.Availability.Err
				if st.Availability.Available {
					available = "yes"
					detail = st.Availability.Path
				}
				tw.AppendRow(table.Row{st.Provider.ID(), available, st.Availability.Version, detail})
			}
			tw.Render()
			return nil
		},
	}
}
