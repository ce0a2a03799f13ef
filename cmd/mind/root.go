package main

import (
	"github.com/spf13/cobra"

	"github.com/420247jake/the-mind/internal/config"
)

type rootOptions struct {
	configDir string
	env       string
	cfg       *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mind",
		Short:         "A live view of an agent's thought graph",
		Long:          longRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env := config.EnvironmentFromEnv()
			if opts.env != "" {
				env = config.Environment(opts.env)
			}
			cfg, err := config.NewLoader(opts.configDir, env).Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "config", "directory holding base, environment and local config files")
	cmd.PersistentFlags().StringVar(&opts.env, "env", "", "environment (development, staging, production); defaults to $MIND_ENV")

	cmd.AddCommand(
		newServeCmd(opts),
		newWatchCmd(opts),
		newLogCmd(opts),
		newConnectCmd(opts),
		newRecallCmd(opts),
		newClustersCmd(opts),
		newSessionsCmd(opts),
		newSummarizeCmd(opts),
	)
	return cmd
}

var longRoot = `
The mind renders the thoughts and connections an external agent writes to a
shared store. "serve" runs the viewer; the write commands append to the store
the way the agent does.

Examples:
  # Run the viewer against the default sqlite database.
  mind serve

  # Log a thought and link it to an earlier one.
  mind log "cache the version token" --category technical --importance 0.7
  mind connect "version token" "poll interval" --reason "same loop"

  # Watch a running viewer in the terminal.
  mind watch --url http://127.0.0.1:7777
`
