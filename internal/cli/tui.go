// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/config"
	"github.com/jeranaias/mdnote/internal/session"
	"github.com/jeranaias/mdnote/internal/ui/assistant"
)

func newTUICommand(a *app) *cobra.Command {
	var resume string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen assistant (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd, resume)
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "continue a saved conversation (ID or ID prefix)")
	return cmd
}

func (a *app) runTUI(cmd *cobra.Command, resume string) error {
	if err := a.setupLogging(true); err != nil {
		return err
	}

	opts := assistant.Options{Notes: a.notes()}
	var extra []session.Option
	if store, err := a.store(); err != nil {
		a.logger.Warn("conversation store unavailable", "error", err)
	} else {
		opts.Store = store
	}
	if resume != "" {
		if opts.Store == nil {
			return &ConfigError{Err: errors.New("conversation store unavailable")}
		}
		conv, err := opts.Store.Resolve(resume)
		if err != nil {
			return err
		}
		opts.Saved = conv
		extra = append(extra, session.WithTranscript(conv.Transcript(a.cfg.ContextLimit)))
	}

	bridge := assistant.NewBridge()
	sess := a.newSession(bridge, extra...)
	defer sess.Close()

	m := assistant.New(sess, opts)
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)

	go bridge.Run(p)
	defer bridge.Stop()

	watcher, err := a.watchConfig(func(cfg *config.Config) {
		p.Send(assistant.ConfigReloadedMsg{Config: cfg.SessionConfig()})
	})
	if err != nil {
		a.logger.Warn("config hot reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	a.logger.Info("assistant panel started", "model", a.cfg.Model, "context_limit", a.cfg.ContextLimit)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
