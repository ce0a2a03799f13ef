package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/420247jake/the-mind/internal/di"
	"github.com/420247jake/the-mind/internal/ingest"
)

// withWriter runs fn against a freshly wired write side and prints its result
// as indented JSON.
func withWriter(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, w *di.Writer) (any, error)) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	w, cleanup, err := di.InitializeWriter(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := fn(ctx, w)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogCmd(opts *rootOptions) *cobra.Command {
	var in ingest.LogThoughtInput
	cmd := &cobra.Command{
		Use:   "log <content>",
		Short: "Log a thought",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Content = strings.Join(args, " ")
			return withWriter(cmd, opts, func(ctx context.Context, w *di.Writer) (any, error) {
				return w.Ingest.LogThought(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Category, "category", "", "work, personal, technical, creative or other; inferred when empty")
	cmd.Flags().Float64Var(&in.Importance, "importance", 0.5, "importance in [0, 1]")
	cmd.Flags().StringVar(&in.Role, "role", ingest.DefaultThoughtRole, "who produced the thought")
	return cmd
}

func newConnectCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "connect <from> <to>",
		Short: "Connect the best matches of two queries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := ingest.ConnectInput{From: args[0], To: args[1], Reason: reason}
			return withWriter(cmd, opts, func(ctx context.Context, w *di.Writer) (any, error) {
				return w.Ingest.Connect(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the thoughts are related")
	return cmd
}

func newRecallCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search thought content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := ingest.RecallInput{Query: strings.Join(args, " "), Limit: limit}
			return withWriter(cmd, opts, func(ctx context.Context, w *di.Writer) (any, error) {
				return w.Ingest.Recall(ctx, in)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", ingest.DefaultRecallLimit, "maximum number of thoughts")
	return cmd
}

func newClustersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clusters",
		Short: "List category clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWriter(cmd, opts, func(ctx context.Context, w *di.Writer) (any, error) {
				return w.Ingest.Clusters(ctx)
			})
		},
	}
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List session summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWriter(cmd, opts, func(ctx context.Context, w *di.Writer) (any, error) {
				return w.Ingest.Sessions(ctx)
			})
		},
	}
}

func newSummarizeCmd(opts *rootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "summarize <summary>",
		Short: "Record a session summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			in := ingest.SummarizeInput{Title: title, Summary: strings.Join(args, " ")}
			return withWriter(cmd, opts, func(ctx context.Context, w *di.Writer) (any, error) {
				return w.Ingest.SummarizeSession(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "session title")
	return cmd
}
