// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration management for mdnote.
//
// Configuration is loaded from ~/.mdnote/assistant.toml, falling back to
// assistant.json, and finally to built-in defaults. Environment variables
// override file values.
//
// # Loading Order
//
//  1. Defaults (Default)
//  2. TOML file, or JSON file when no TOML file exists
//  3. Environment overrides (MDNOTE_API_KEY, MDNOTE_SERVER_URL, MDNOTE_MODEL,
//     MDNOTE_NOTES_URL, MDNOTE_LOG_LEVEL)
//  4. SetDefaults for anything still empty, then Validate
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	s := session.New(cfg.SessionConfig(), session.WithContextLimit(cfg.ContextLimit))
//
// # Security
//
// Config files are written with 0600 permissions since they hold the API
// key, and String redacts the key.
package config
