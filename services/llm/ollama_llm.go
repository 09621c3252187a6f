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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ollamaDefaultURL     = "http://localhost:11434"
	ollamaDefaultModel   = "gpt-oss"
	ollamaDefaultTimeout = 5 * time.Minute
)

// OllamaClient calls a local Ollama server through langchaingo.
type OllamaClient struct {
	llm       *ollama.LLM
	baseURL   string
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewOllamaClient creates an Ollama backend. The server URL comes from
// cfg.BaseURL, OLLAMA_HOST, or http://localhost:11434.
func NewOllamaClient(cfg BackendConfig) (*OllamaClient, error) {
	logger := loggerOrDefault(cfg.Logger)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	model := cfg.Model
	if model == "" {
		model = ollamaDefaultModel
		logger.Warn("ollama model not set, using default", "model", model)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = ollamaDefaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create ollama client: %w", err)
	}

	logger.Info("initializing ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		llm:       client,
		baseURL:   baseURL,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Generate implements LLMClient.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.backend", BackendOllama), attribute.String("llm.model", o.model))

	var messages []llms.MessageContent
	if params.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, params.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{llms.WithMaxTokens(o.maxTokens)}
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	} else {
		opts = append(opts, llms.WithTemperature(0.2))
	}
	if params.TopK != nil {
		opts = append(opts, llms.WithTopK(*params.TopK))
	}
	if params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*params.TopP)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}

	o.logger.Debug("generating text via ollama", "model", o.model)
	resp, err := o.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", fmt.Errorf("llm: ollama generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: ollama returned no choices")
	}
	return resp.Choices[0].Content, nil
}
