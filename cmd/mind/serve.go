package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/di"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := di.InitializeApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			app.Logger.Info("Configuration loaded",
				zap.Strings("sources", opts.cfg.LoadedFrom),
				zap.String("driver", opts.cfg.Store.Driver),
			)
			return app.Run(ctx)
		},
	}
}

// commandContext is the context write commands run under.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
