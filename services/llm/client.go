// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the language-model backends behind the persona
// advisor: Anthropic (messages API over HTTP), OpenAI (go-openai) and
// Ollama (langchaingo).
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("conscience.llm")

// Backend names accepted by New.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
)

// GenerationParams tunes a single generation. Nil fields use the backend
// default.
type GenerationParams struct {
	// System is an optional system prompt.
	System      string   `json:"system,omitempty"`
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	// Backend is one of BackendAnthropic, BackendOpenAI, BackendOllama.
	Backend string `yaml:"backend"`

	// Model overrides the backend's default model.
	Model string `yaml:"model"`

	// APIKey for hosted backends. When empty the backend's environment
	// variable and then its /run/secrets file are consulted.
	APIKey string `yaml:"-"`

	// BaseURL overrides the backend endpoint.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single request. Default: 60s (5m for ollama).
	Timeout time.Duration `yaml:"timeout"`

	// MaxTokens is the default completion budget.
	MaxTokens int `yaml:"max_tokens"`

	Logger *slog.Logger `yaml:"-"`
}

// New creates the backend named by cfg.Backend.
func New(cfg BackendConfig) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendAnthropic:
		return NewAnthropicClient(cfg)
	case BackendOpenAI:
		return NewOpenAIClient(cfg)
	case BackendOllama:
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", cfg.Backend)
	}
}

// resolveSecret returns explicit if set, otherwise the environment variable,
// otherwise the trimmed contents of the container secret file.
func resolveSecret(explicit, envVar, secretPath string, logger *slog.Logger) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if content, err := os.ReadFile(secretPath); err == nil {
		logger.Info("read API key from container secret", "path", secretPath)
		return strings.TrimSpace(string(content))
	}
	return ""
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
