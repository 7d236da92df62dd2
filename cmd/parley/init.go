package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flemzord/parley/internal/config"
	"github.com/flemzord/parley/internal/security"
)

// starterConfig is written by init when no configuration file exists.
const starterConfig = `version: "1"

provider:
  model: %s
  credentials_file: %s

cache:
  enabled: false
  path: openai.cache

transcript:
  path: openai.log
`

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Store an API key and write a starter configuration",
		Long: `Store an API key and write a starter configuration.

On a terminal, init prompts for the key and the default model. Otherwise
the key is read from the first line of standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			credFile, _ := cmd.Flags().GetString("credentials-file")
			model, _ := cmd.Flags().GetString("model")
			cfgOut, _ := cmd.Flags().GetString("write-config")

			var key string
			if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				if err := promptSetup(&key, &model); err != nil {
					return err
				}
			} else {
				var err error
				if key, err = readKeyLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			if err := security.WriteCredentialFile(credFile, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key saved to %s\n", credFile)

			if cfgOut == "" {
				return nil
			}
			written, err := writeStarterConfig(cfgOut, model, credFile)
			if err != nil {
				return err
			}
			if written {
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", cfgOut)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s already exists, left unchanged\n", cfgOut)
			}
			return nil
		},
	}
	cmd.Flags().String("credentials-file", security.DefaultCredentialFile, "Where to store the API key")
	cmd.Flags().String("model", config.DefaultModel, "Default model written to the configuration")
	cmd.Flags().String("write-config", defaultConfigPath(), "Configuration file to create; empty skips it")
	return cmd
}

// promptSetup asks for the API key and the default model.
func promptSetup(key, model *string) error {
	models := config.DefaultModels()
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				EchoMode(huh.EchoModePassword).
				Value(key).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("the key cannot be empty")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Default model").
				Options(
					huh.NewOption(models["4"], models["4"]),
					huh.NewOption(models["3.5"], models["3.5"]),
				).
				Value(model),
		),
	)
	return form.Run()
}

func readKeyLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", fmt.Errorf("%w: no key on standard input", security.ErrCredential)
	}
	return key, nil
}

// writeStarterConfig creates path unless it exists. It reports whether the
// file was written.
func writeStarterConfig(path, model, credFile string) (bool, error) {
	resolved, err := security.ExpandHome(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(resolved); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	data := fmt.Sprintf(starterConfig, model, credFile)
	if err := os.WriteFile(resolved, []byte(data), 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}

// defaultConfigPath is the first search location for the configuration.
func defaultConfigPath() string {
	if paths := config.SearchPaths(); len(paths) > 0 {
		return paths[0]
	}
	return config.FileName
}
