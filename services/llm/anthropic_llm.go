// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	anthropicAPIVersion   = "2023-06-01"
	anthropicDefaultURL   = "https://api.anthropic.com/v1/messages"
	anthropicDefaultModel = "claude-sonnet-4-20250514"
	anthropicSecretPath   = "/run/secrets/anthropic_api_key"
	defaultMaxTokens      = 1024
	defaultHostedTimeout  = 60 * time.Second
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient calls the Anthropic messages API.
//
// The API key is sealed in a memguard enclave and only opened for the
// duration of a request.
type AnthropicClient struct {
	httpClient *http.Client
	key        *memguard.Enclave
	baseURL    string
	model      string
	maxTokens  int
	logger     *slog.Logger
}

// NewAnthropicClient creates an Anthropic backend. The key comes from
// cfg.APIKey, ANTHROPIC_API_KEY, or the container secret, in that order.
func NewAnthropicClient(cfg BackendConfig) (*AnthropicClient, error) {
	logger := loggerOrDefault(cfg.Logger)
	apiKey := resolveSecret(cfg.APIKey, "ANTHROPIC_API_KEY", anthropicSecretPath, logger)
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY is missing")
	}

	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
		logger.Info("anthropic model not set, using default", "model", model)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHostedTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &AnthropicClient{
		httpClient: &http.Client{Timeout: timeout},
		key:        memguard.NewEnclave([]byte(apiKey)),
		baseURL:    baseURL,
		model:      model,
		maxTokens:  maxTokens,
		logger:     logger,
	}, nil
}

// Generate implements LLMClient.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "AnthropicClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.backend", BackendAnthropic), attribute.String("llm.model", a.model))

	payload := anthropicRequest{
		Model:       a.model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		System:      params.System,
		MaxTokens:   a.maxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		StopSeqs:    params.Stop,
	}
	if params.MaxTokens != nil {
		payload.MaxTokens = *params.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm: marshal anthropic request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create anthropic request: %w", err)
	}

	key, err := a.key.Open()
	if err != nil {
		return "", fmt.Errorf("llm: open api key enclave: %w", err)
	}
	// String aliases the locked buffer; the header needs its own copy
	// before Destroy wipes and unmaps it.
	req.Header.Set("x-api-key", strings.Clone(key.String()))
	key.Destroy()
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	a.logger.Debug("sending request to anthropic", "model", a.model)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("llm: anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return "", fmt.Errorf("llm: anthropic returned status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("llm: parse anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("llm: anthropic error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("llm: anthropic response has no text block")
	}
	return text.String(), nil
}

// Purge wipes every sealed API key in the process. Clients created
// earlier can no longer open their keys. Call it once on shutdown, after
// the last Generate has returned; signal handling stays with the caller.
func Purge() {
	memguard.Purge()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
