// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/jeranaias/mdnote/internal/cloud"
)

// Default generation settings.
const (
	DefaultModel        = "gpt-3.5-turbo"
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 2000
	DefaultSystemPrompt = "You are a professional AI assistant that helps users answer questions and analyze documents."
)

// Config is the endpoint and generation settings of a Session. A copy is
// taken when a request is built, so replacing the Config never affects a
// request already in flight.
type Config struct {
	BaseURL      string  `json:"server_url"`
	APIKey       string  `json:"-"`
	SystemPrompt string  `json:"system_prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// DefaultConfig returns the settings used when nothing is configured.
// The API key is left empty.
func DefaultConfig() Config {
	return Config{
		BaseURL:      cloud.DefaultBaseURL,
		SystemPrompt: DefaultSystemPrompt,
		Model:        DefaultModel,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
	}
}

// String returns a log-safe description with the API key masked.
func (c Config) String() string {
	return fmt.Sprintf("Config{BaseURL: %s, Model: %s, Temperature: %.2f, MaxTokens: %d, APIKey: %s}",
		c.BaseURL, c.Model, c.Temperature, c.MaxTokens, cloud.MaskKey(c.APIKey))
}

// AnalysisPrompt wraps a document in the analysis request sent to the model.
// The document text is included verbatim.
func AnalysisPrompt(documentText string) string {
	return "Please analyze the following file content and give a summary and suggestions:\n\n" + documentText
}
