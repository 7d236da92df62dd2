package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/parley/internal/config"
	"github.com/flemzord/parley/internal/security"
	"github.com/flemzord/parley/pkg/app"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Response cache management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print the number and size of cached responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, _, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			path, err := security.ExpandHome(cfg.Cache.Path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(out, "No cache at %s\n", path)
				return nil
			}

			logger, err := app.NewLogger(cmd.ErrOrStderr(), cfg.Log, security.NewRedactor())
			if err != nil {
				return err
			}
			// Stats are readable even when caching is switched off.
			cacheCfg := cfg.Cache
			cacheCfg.Enabled = true
			c, err := app.OpenCache(cacheCfg, logger, nil)
			if err != nil {
				return err
			}
			st, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}

			state := "disabled"
			if cfg.Cache.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(out, "Cache %s (%s)\n", path, state)
			fmt.Fprintf(out, "  entries: %d\n", st.Entries)
			fmt.Fprintf(out, "  bytes:   %d\n", st.Bytes)
			return nil
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, used, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if used == "" {
				used = "built-in defaults"
			}
			fmt.Fprintf(out, "Configuration OK (%s)\n", used)
			for _, w := range config.Warnings(cfg) {
				fmt.Fprintf(out, "warning: %s\n", w)
			}

			if show, _ := cmd.Flags().GetBool("show"); !show {
				return nil
			}

			// Round-trip through a generic document so secrets can be
			// masked by key name.
			raw, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			var doc map[string]any
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return err
			}
			security.NewRedactor().RedactMap(doc)

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	check.Flags().Bool("show", false, "Print the effective configuration with secrets masked")
	cmd.AddCommand(check)
	return cmd
}
