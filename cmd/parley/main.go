// Package main is the entry point for the parley CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// SIGINT is left alone here: the chat loop claims it per answer, and
	// outside an answer it ends the process.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "parley:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	chat := chatCmd()
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Chat with an OpenAI model from the terminal",
		Long:          "Chat with an OpenAI model from the terminal. Without a subcommand, parley starts an interactive conversation.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          chat.RunE,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	addAskFlags(root)
	root.Flags().Bool("no-stream", false, "Print each answer once complete")

	root.AddCommand(chat, askCmd(), initCmd(), cacheCmd(), configCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "parley %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
