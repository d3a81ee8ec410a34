// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mdnote/internal/config"
	"github.com/jeranaias/mdnote/internal/logging"
	"github.com/jeranaias/mdnote/internal/notes"
	"github.com/jeranaias/mdnote/internal/session"
	"github.com/jeranaias/mdnote/internal/storage"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	model      string
	serverURL  string
	notesURL   string
	logLevel   string
	verbose    bool
}

// app carries the loaded configuration and logger between a command's
// pre-run and its body.
type app struct {
	opts      globalOptions
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCommand()
	defer a.close()

	if err := root.ExecuteContext(ctx); err != nil {
		DisplayError(root.ErrOrStderr(), err)
		return ExitCode(err)
	}
	return ExitSuccess
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	root := &cobra.Command{
		Use:   "mdnote",
		Short: "Markdown notebook assistant",
		Long: `mdnote is a chat assistant for a Markdown notebook.

It streams replies from an OpenAI-compatible chat completion service, keeps a
bounded transcript of the conversation, and can analyze notes served by the
notebook server or local files.

Quick Start:
  mdnote                          # full-screen assistant
  mdnote chat                     # line-based chat
  mdnote ask "What is a monad?"   # one question, streamed
  mdnote analyze --note todo.md   # summary and suggestions for a note
  mdnote serve                    # HTTP front for the browser panel
  mdnote history list             # saved conversations`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd, "")
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.configPath, "config", "c", "", "config file (default ~/.mdnote/assistant.toml)")
	flags.StringVarP(&a.opts.model, "model", "m", "", "model name for this run")
	flags.StringVar(&a.opts.serverURL, "server-url", "", "chat completion base URL for this run")
	flags.StringVar(&a.opts.notesURL, "notes-url", "", "notes server base URL for this run")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newTUICommand(a),
		newChatCommand(a),
		newAskCommand(a),
		newAnalyzeCommand(a),
		newServeCommand(a),
		newConfigCommand(a),
		newHistoryCommand(a),
	)
	return root, a
}

// =============================================================================
// CONFIGURATION AND LOGGING
// =============================================================================

// load reads the configuration and applies the global flags.
func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	if a.opts.configPath != "" {
		cfg, err = config.LoadFromPath(a.opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return &ConfigError{Err: err}
	}

	a.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	a.cfg = cfg
	return nil
}

// applyFlags overrides cfg with the global flags. It is also applied to
// configurations reloaded by a watcher.
func (a *app) applyFlags(cfg *config.Config) *config.Config {
	if a.opts.model != "" {
		cfg.Model = a.opts.model
	}
	if a.opts.serverURL != "" {
		cfg.ServerURL = a.opts.serverURL
	}
	if a.opts.notesURL != "" {
		cfg.NotesURL = a.opts.notesURL
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	if a.opts.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg
}

// setupLogging installs the configured logger. Full-screen commands cannot
// share the terminal with log output, so they log to the log file instead.
func (a *app) setupLogging(fullScreen bool) error {
	lc := a.cfg.LoggingConfig()
	if fullScreen && (lc.Output == "" || lc.Output == "stderr" || lc.Output == "stdout") {
		path, err := config.LogPath()
		if err != nil {
			return &ConfigError{Err: err}
		}
		lc.Output = "file"
		lc.FilePath = path
	}

	logger, closer, err := logging.New(lc)
	if err != nil {
		return &ConfigError{Err: err}
	}
	a.close()
	a.logger = logger
	a.logCloser = closer
	slog.SetDefault(logger)
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}

// watchConfig reloads the configuration file on change and hands the result,
// with flags applied, to onChange.
func (a *app) watchConfig(onChange func(*config.Config)) (*config.Watcher, error) {
	apply := func(cfg *config.Config) {
		onChange(a.applyFlags(cfg))
	}

	var (
		w   *config.Watcher
		err error
	)
	if a.opts.configPath != "" {
		w, err = config.WatchPath(a.opts.configPath, apply)
	} else {
		w, err = config.Watch(apply)
	}
	if err != nil {
		return nil, err
	}
	w.SetLogger(a.logger)
	return w, nil
}

// configFile returns the file that config set writes and whether it exists.
func (a *app) configFile() (string, bool, error) {
	if a.opts.configPath != "" {
		_, err := os.Stat(a.opts.configPath)
		return a.opts.configPath, err == nil, nil
	}

	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, true, nil
	}
	jsonPath, err := config.ConfigPathJSON()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, true, nil
	}
	return tomlPath, false, nil
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// =============================================================================
// SESSION WIRING
// =============================================================================

// newSession creates a session from the loaded configuration.
func (a *app) newSession(observer session.Observer, extra ...session.Option) *session.Session {
	opts := []session.Option{
		session.WithObserver(observer),
		session.WithContextLimit(a.cfg.ContextLimit),
		session.WithLogger(a.logger),
	}
	return session.New(a.cfg.SessionConfig(), append(opts, extra...)...)
}

// store opens the saved conversation store.
func (a *app) store() (*storage.Store, error) {
	dir, err := config.ConversationsDir()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return storage.NewStore(dir)
}

// notes returns a client for the configured notes server.
func (a *app) notes() *notes.Client {
	return notes.NewClient(a.cfg.NotesURL).WithLogger(a.logger)
}
