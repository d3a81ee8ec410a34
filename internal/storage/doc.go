// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage saves conversations so they can be listed and resumed.
//
// Each conversation is one JSON file named after its ID in the store
// directory (normally ~/.mdnote/conversations). Files are written
// atomically; the oldest are removed once MaxConversations is exceeded.
//
//	store, err := storage.NewStore(dir)
//	id, err := store.Save(&storage.Conversation{Model: model, Messages: msgs})
//	conv, err := store.Resolve(id[:8])
//	transcript := conv.Transcript(limit)
//
// Saving is best effort and carries no durability promise beyond the atomic
// rename.
package storage
