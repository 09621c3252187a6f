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

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	openAIDefaultModel = "gpt-4o-mini"
	openAISecretPath   = "/run/secrets/openai_api_key"
)

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewOpenAIClient creates an OpenAI backend. The key comes from
// cfg.APIKey, OPENAI_API_KEY, or the container secret, in that order.
func NewOpenAIClient(cfg BackendConfig) (*OpenAIClient, error) {
	logger := loggerOrDefault(cfg.Logger)
	apiKey := resolveSecret(cfg.APIKey, "OPENAI_API_KEY", openAISecretPath, logger)
	if apiKey == "" {
		return nil, fmt.Errorf("llm: OPENAI_API_KEY is missing")
	}

	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
		logger.Info("openai model not set, using default", "model", model)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHostedTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Generate implements LLMClient.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.backend", BackendOpenAI), attribute.String("llm.model", o.model))

	var messages []openai.ChatCompletionMessage
	if params.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: params.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:               o.model,
		Messages:            messages,
		MaxCompletionTokens: o.maxTokens,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	o.logger.Debug("sending request to openai", "model", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("llm: openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: openai returned no choices")
	}
	o.logger.Debug("openai response received", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
