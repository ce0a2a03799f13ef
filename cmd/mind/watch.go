package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/420247jake/the-mind/internal/tui"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		url      string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a running viewer in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = "http://" + opts.cfg.Server.Addr()
			}
			model := tui.New(tui.NewClient(url, 2*time.Second), interval)
			if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "viewer base URL; defaults to the configured server address")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "refresh interval")
	return cmd
}
