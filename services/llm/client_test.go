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
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Factory
// =============================================================================

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(BackendConfig{Backend: "watson"})
	require.Error(t, err)
}

func TestNew_SelectsBackend(t *testing.T) {
	c, err := New(BackendConfig{Backend: "Anthropic", APIKey: "k", Logger: quietLogger()})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)

	c, err = New(BackendConfig{Backend: "openai", APIKey: "k", Logger: quietLogger()})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = New(BackendConfig{Backend: "ollama", BaseURL: "http://127.0.0.1:1", Model: "llama3", Logger: quietLogger()})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("CONSCIENCE_TEST_KEY", "from-env")
	assert.Equal(t, "explicit", resolveSecret("explicit", "CONSCIENCE_TEST_KEY", "/nonexistent", quietLogger()))
	assert.Equal(t, "from-env", resolveSecret("", "CONSCIENCE_TEST_KEY", "/nonexistent", quietLogger()))

	t.Setenv("CONSCIENCE_TEST_KEY", "")
	assert.Empty(t, resolveSecret("", "CONSCIENCE_TEST_KEY", "/nonexistent/secret", quietLogger()))
}

// =============================================================================
// Anthropic
// =============================================================================

func TestAnthropic_Generate(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"{\"stance\":"},{"type":"text","text":"\"ok\"}"}]}`))
	}))
	defer server.Close()

	c, err := NewAnthropicClient(BackendConfig{APIKey: "secret-key", BaseURL: server.URL, Model: "claude-test", Logger: quietLogger()})
	require.NoError(t, err)

	temp := float32(0.1)
	out, err := c.Generate(context.Background(), "evaluate this", GenerationParams{System: "be brief", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, `{"stance":"ok"}`, out)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "be brief", got.System)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "evaluate this", got.Messages[0].Content)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, temp, *got.Temperature)
}

func TestAnthropic_KeySurvivesRepeatedRequests(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"ok"}]}`))
	}))
	defer server.Close()

	c, err := NewAnthropicClient(BackendConfig{APIKey: "sk-test-key", BaseURL: server.URL, Logger: quietLogger()})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := c.Generate(context.Background(), "hi", GenerationParams{})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
	assert.Equal(t, []string{"sk-test-key", "sk-test-key", "sk-test-key"}, keys)
}

func TestPurge_SealsExistingClients(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"ok"}]}`))
	}))
	defer server.Close()

	c, err := NewAnthropicClient(BackendConfig{APIKey: "k", BaseURL: server.URL, Logger: quietLogger()})
	require.NoError(t, err)

	Purge()

	_, err = c.Generate(context.Background(), "x", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open api key enclave")
	assert.False(t, called)

	fresh, err := NewAnthropicClient(BackendConfig{APIKey: "k", BaseURL: server.URL, Logger: quietLogger()})
	require.NoError(t, err)
	_, err = fresh.Generate(context.Background(), "x", GenerationParams{})
	require.NoError(t, err)
}

func TestAnthropic_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	c, err := NewAnthropicClient(BackendConfig{APIKey: "k", BaseURL: server.URL, Logger: quietLogger()})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "x", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropic_NoTextBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[]}`))
	}))
	defer server.Close()

	c, err := NewAnthropicClient(BackendConfig{APIKey: "k", BaseURL: server.URL, Logger: quietLogger()})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "x", GenerationParams{})
	require.Error(t, err)
}

func TestAnthropic_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicClient(BackendConfig{Logger: quietLogger()})
	if err == nil {
		t.Skip("container secret present on this host")
	}
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

// =============================================================================
// OpenAI
// =============================================================================

func TestOpenAI_Generate(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer openai-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	c, err := NewOpenAIClient(BackendConfig{APIKey: "openai-key", BaseURL: server.URL + "/v1", Model: "gpt-test", Logger: quietLogger()})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "hi", GenerationParams{System: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	assert.Equal(t, "gpt-test", got["model"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestOpenAI_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer server.Close()

	c, err := NewOpenAIClient(BackendConfig{APIKey: "k", BaseURL: server.URL + "/v1", Logger: quietLogger()})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi", GenerationParams{})
	require.Error(t, err)
}
