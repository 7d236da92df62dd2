package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/parley/internal/repl"
	"github.com/flemzord/parley/internal/session"
	"github.com/flemzord/parley/pkg/app"
)

// addAskFlags registers the per-query flags shared by chat and ask.
func addAskFlags(cmd *cobra.Command) {
	cmd.Flags().Float64P("temperature", "t", 0, "Sampling temperature; 0 makes answers cacheable")
	cmd.Flags().Int("max-tokens", 0, "Maximum answer length in tokens")
	cmd.Flags().Bool("skip-cache", false, "Do not read or write the response cache")
	cmd.Flags().Bool("update-cache", false, "Always call the service and overwrite cached answers")
}

// askOptions turns the flags set on cmd into per-query options.
func askOptions(cmd *cobra.Command) []session.AskOption {
	var opts []session.AskOption
	flags := cmd.Flags()
	if flags.Changed("temperature") {
		t, _ := flags.GetFloat64("temperature")
		opts = append(opts, session.WithTemperature(t))
	}
	if n, _ := flags.GetInt("max-tokens"); n > 0 {
		opts = append(opts, session.WithMaxTokens(n))
	}
	if skip, _ := flags.GetBool("skip-cache"); skip {
		opts = append(opts, session.WithSkipCache())
	}
	if update, _ := flags.GetBool("update-cache"); update {
		opts = append(opts, session.WithUpdateCache())
	}
	return opts
}

// start loads the configuration named by --config and assembles the app.
func start(cmd *cobra.Command) (*app.App, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, _, err := app.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.Params{
		Version:   version,
		Commit:    commit,
		Date:      date,
		LogOutput: cmd.ErrOrStderr(),
	})
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation.

Type a query over one or more lines and submit it with a line containing
only "end". Commands, entered on their own line: reset, exit, context,
prune, prune recent, model <alias>. Ctrl-C stops the current answer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := start(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(cmd.Context()))

			opts := []repl.Option{
				repl.WithModels(a.Models()),
				repl.WithLogger(a.Logger.With("component", "repl")),
				repl.WithAskOptions(askOptions(cmd)...),
			}
			if noStream, _ := cmd.Flags().GetBool("no-stream"); noStream {
				opts = append(opts, repl.WithoutStreaming())
			}
			return repl.New(a.Session, cmd.InOrStdin(), cmd.OutOrStdout(), opts...).Run(cmd.Context())
		},
	}
	addAskFlags(cmd)
	cmd.Flags().Bool("no-stream", false, "Print each answer once complete")
	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Ask a single question and print the answer",
		Long:  "Ask a single question and print the answer. The query is read from standard input when no argument is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if query == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read query: %w", err)
				}
				query = strings.TrimSpace(string(data))
			}
			if query == "" {
				return fmt.Errorf("empty query")
			}

			a, err := start(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(cmd.Context()))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
			defer stop()

			out := cmd.OutOrStdout()
			if stream, _ := cmd.Flags().GetBool("stream"); stream {
				_, err = a.Session.PromptStreamAndPrint(ctx, out, query, askOptions(cmd)...)
			} else {
				_, err = a.Session.PromptAndPrint(ctx, out, query, askOptions(cmd)...)
			}
			return err
		},
	}
	addAskFlags(cmd)
	cmd.Flags().Bool("stream", false, "Print the answer as it is generated")
	return cmd
}
