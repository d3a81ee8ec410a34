// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/cloud"
	"github.com/jeranaias/mdnote/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		Example: `  mdnote config show
  mdnote config get model
  mdnote config set model gpt-4o-mini
  mdnote config set server.allowed_origins http://localhost:3000,http://127.0.0.1:3000`,
		// Subcommands load what they need; a broken file must stay fixable.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	cmd.AddCommand(
		newConfigShowCommand(a),
		newConfigGetCommand(a),
		newConfigSetCommand(a),
		newConfigPathCommand(a),
	)
	return cmd
}

// displayValue formats a config value for output. The API key is masked.
func displayValue(key string, v interface{}) string {
	switch val := v.(type) {
	case string:
		if key == "api_key" {
			return cloud.MaskKey(val)
		}
		return val
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprint(val)
	}
}

func newConfigShowCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			values := make(map[string]string, len(config.Keys()))
			for _, key := range config.Keys() {
				v, err := a.cfg.Get(key)
				if err != nil {
					return err
				}
				values[key] = displayValue(key, v)
			}

			if asJSON {
				return NewJSONResponse("config show", values).Write(out)
			}

			fmt.Fprintln(out, TitleStyle.Render("Configuration"))
			for _, key := range config.Keys() {
				fmt.Fprintln(out, "  "+keyValue(key+": ", values[key]))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newConfigGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return newUsageError("%v (keys: %s)", err, strings.Join(config.Keys(), ", "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), displayValue(strings.TrimSpace(args[0]), v))
			return nil
		},
	}
}

func newConfigSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the configuration file",
		Long: `Change one value in the configuration file.

Only the file's own values are written back; environment overrides and
command-line flags are not persisted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, exists, err := a.configFile()
			if err != nil {
				return &ConfigError{Err: err}
			}

			cfg := config.Default()
			if exists {
				load := config.LoadTOML
				if isJSONPath(path) {
					load = config.LoadJSON
				}
				if err := load(cfg, path); err != nil {
					return &ConfigError{Err: err}
				}
			}

			if err := cfg.Set(args[0], args[1]); err != nil {
				return newUsageError("%v", err)
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return newUsageError("%v", err)
			}

			if a.opts.configPath == "" {
				if err := config.EnsureConfigDir(); err != nil {
					return &ConfigError{Err: err}
				}
			}
			save := config.SaveTOML
			if isJSONPath(path) {
				save = config.SaveJSON
			}
			if err := save(cfg, path); err != nil {
				return &ConfigError{Err: err}
			}

			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Saved")+" "+DimStyle.Render(path))
			return nil
		},
	}
}

func newConfigPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, exists, err := a.configFile()
			if err != nil {
				return &ConfigError{Err: err}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)
			if !exists {
				fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("(not created yet; defaults are in use)"))
			}
			return nil
		},
	}
}
