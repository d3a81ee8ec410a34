// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/util"
)

const (
	// DefaultMaxConversations is the number of conversations kept by NewStore.
	DefaultMaxConversations = 100

	idPrefix     = "conv_"
	titleWidth   = 50
	previewWidth = 80
)

// =============================================================================
// TYPES
// =============================================================================

// Conversation is a saved transcript.
type Conversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []model.Message `json:"messages"`
}

// Meta describes a conversation for listing.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// Meta returns the listing entry for c.
func (c *Conversation) Meta() Meta {
	return Meta{
		ID:           c.ID,
		Title:        c.Title,
		Model:        c.Model,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
		Preview:      util.Preview(firstUserText(c.Messages), previewWidth),
	}
}

// Transcript rebuilds a bounded transcript from the saved messages. When the
// conversation is longer than limit only the newest messages are kept.
func (c *Conversation) Transcript(limit int) *model.Transcript {
	t := model.NewTranscript(limit)
	for _, m := range c.Messages {
		t.Append(m)
	}
	return t
}

func firstUserText(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.TrimSpace(m.Text) != "" {
			return m.Text
		}
	}
	return ""
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned for an unknown conversation ID.
	ErrNotFound = errors.New("conversation not found")

	// ErrAmbiguousID is returned when an ID prefix matches several
	// conversations.
	ErrAmbiguousID = errors.New("conversation ID is ambiguous")
)

// =============================================================================
// STORE
// =============================================================================

// Store keeps conversations as JSON files in one directory.
type Store struct {
	// Dir holds one <id>.json file per conversation.
	Dir string

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int
}

// NewStore creates the directory if needed and returns a store for it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversation directory: %w", err)
	}
	return &Store{Dir: dir, MaxConversations: DefaultMaxConversations}, nil
}

// Save writes conv and returns its ID. A missing ID, title or creation time
// is filled in.
func (s *Store) Save(conv *Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = newID()
	}
	if conv.Title == "" {
		conv.Title = title(conv.Messages)
	}
	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}
	if err := util.AtomicWriteFile(s.path(conv.ID), data, 0600); err != nil {
		return "", err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}
	return conv.ID, nil
}

// Load reads the conversation with exactly this ID.
func (s *Store) Load(id string) (*Conversation, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

// Resolve loads a conversation by ID or unique ID prefix. The "conv_" prefix
// may be omitted.
func (s *Store) Resolve(ref string) (*Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNotFound
	}
	if !strings.HasPrefix(ref, idPrefix) {
		ref = idPrefix + ref
	}
	if conv, err := s.Load(ref); err == nil {
		return conv, nil
	}

	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	var match string
	for _, id := range ids {
		if !strings.HasPrefix(id, ref) {
			continue
		}
		if match != "" {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, ref)
		}
		match = id
	}
	if match == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return s.Load(match)
}

// List returns every readable conversation, most recently updated first.
// Unreadable files are skipped.
func (s *Store) List() ([]Meta, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(ids))
	for _, id := range ids {
		conv, err := s.Load(id)
		if err != nil {
			continue
		}
		metas = append(metas, conv.Meta())
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search returns conversations where the title or any message contains
// query. Matching uses Unicode case folding on NFC-normalized text, so
// "strasse" finds "Straße". An empty query lists everything.
func (s *Store) Search(query string) ([]Meta, error) {
	query = fold(strings.TrimSpace(query))
	all, err := s.List()
	if err != nil || query == "" {
		return all, err
	}

	var results []Meta
	for _, meta := range all {
		if strings.Contains(fold(meta.Title), query) {
			results = append(results, meta)
			continue
		}
		conv, err := s.Load(meta.ID)
		if err != nil {
			continue
		}
		for _, m := range conv.Messages {
			if strings.Contains(fold(m.Text), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// Delete removes the conversation with exactly this ID.
func (s *Store) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	return nil
}

// enforceLimit removes the least recently updated conversations over the
// limit.
func (s *Store) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}
	for _, meta := range metas[s.MaxConversations:] {
		s.Delete(meta.ID)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

func (s *Store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func newID() string {
	return idPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// validID rejects IDs that could escape the store directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

// title is the first user message on one line, or a placeholder.
func title(msgs []model.Message) string {
	if text := firstUserText(msgs); text != "" {
		return util.Preview(text, titleWidth)
	}
	return "New conversation"
}
