// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/config"
	"github.com/jeranaias/mdnote/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP for the browser panel",
		Long: `Serve the assistant to browser-hosted panels.

Clients post messages and follow the reply on a server-sent events stream at
/api/assistant/events. The configuration file is watched; model and prompt
changes apply to the next request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setupLogging(false); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			srv := server.New(server.Options{
				Addr:               addr,
				Session:            a.cfg.SessionConfig(),
				ContextLimit:       a.cfg.ContextLimit,
				Notes:              a.notes(),
				AllowedOrigins:     a.cfg.Server.AllowedOrigins,
				RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
				Logger:             a.logger,
			})

			watcher, err := a.watchConfig(func(cfg *config.Config) {
				srv.Session().SetConfig(cfg.SessionConfig())
				a.logger.Info("configuration reloaded", "model", cfg.Model)
			})
			if err != nil {
				a.logger.Warn("config hot reload disabled", "error", err)
			} else {
				defer watcher.Close()
			}

			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:5055)")
	return cmd
}
