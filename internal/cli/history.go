// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/export"
	"github.com/jeranaias/mdnote/internal/util"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"sessions"},
		Short:   "List, show or delete saved conversations",
		Long: `Manage conversations saved with /save in chat or the full-screen panel.

IDs may be shortened to any unique prefix. Continue a conversation with
mdnote chat --resume <id>.`,
	}
	cmd.AddCommand(
		newHistoryListCommand(a),
		newHistoryShowCommand(a),
		newHistoryDeleteCommand(a),
	)
	return cmd
}

func newHistoryListCommand(a *app) *cobra.Command {
	var (
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			metas, err := store.Search(search)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return NewJSONResponse("history list", metas).Write(out)
			}
			if len(metas) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No saved conversations."))
				return nil
			}

			fmt.Fprintln(out, LabelStyle.Render(
				util.PadRight("ID", 22)+util.PadRight("Updated", 18)+util.PadRight("Msgs", 6)+"Title"))
			width := TerminalWidth(out)
			for _, m := range metas {
				line := util.PadRight(m.ID, 22) +
					util.PadRight(m.UpdatedAt.Local().Format("2006-01-02 15:04"), 18) +
					util.PadRight(strconv.Itoa(m.MessageCount), 6) +
					m.Title
				fmt.Fprintln(out, util.TruncateWidth(line, width))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only conversations containing this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newHistoryShowCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := export.NewExporter(format)
			if err != nil {
				return newUsageError("%v", err)
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			conv, err := store.Resolve(args[0])
			if err != nil {
				return err
			}

			t := export.NewTranscript(conv.Model, conv.Messages)
			t.ExportedAt = conv.UpdatedAt
			return exp.Export(t, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "output format: md, json, yaml, html")
	return cmd
}

func newHistoryDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			conv, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(conv.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted")+" "+conv.ID)
			return nil
		},
	}
}
