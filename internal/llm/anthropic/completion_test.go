//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evidentiary/evidentiary-server/internal/llm"
)

func TestBuildMessages_SystemPrompt(t *testing.T) {
	provider := NewCompletionProvider("test-api-key")

	tests := []struct {
		name         string
		req          llm.CompletionRequest
		expectSystem string
		expectCount  int
	}{
		{
			name: "with system prompt",
			req: llm.CompletionRequest{
				SystemPrompt: "You answer strictly from the supplied evidence.",
				Messages:     []llm.Message{{Role: "user", Content: "Hello"}},
			},
			expectSystem: "You answer strictly from the supplied evidence.",
			expectCount:  1,
		},
		{
			name: "empty system prompt",
			req: llm.CompletionRequest{
				Messages: []llm.Message{{Role: "user", Content: "Hello"}},
			},
			expectSystem: "",
			expectCount:  1,
		},
		{
			name: "system role message folded into system prompt",
			req: llm.CompletionRequest{
				Messages: []llm.Message{
					{Role: "system", Content: "Be terse."},
					{Role: "user", Content: "Hello"},
				},
			},
			expectSystem: "Be terse.",
			expectCount:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, system := provider.buildMessages(tt.req)

			if system != tt.expectSystem {
				t.Errorf("expected system %q, got %q", tt.expectSystem, system)
			}
			if len(messages) != tt.expectCount {
				t.Errorf("expected %d messages, got %d", tt.expectCount, len(messages))
			}
		})
	}
}

func TestComplete_SystemPromptInRequest(t *testing.T) {
	var capturedRequest messagesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
			return
		}
		if err := json.Unmarshal(body, &capturedRequest); err != nil {
			t.Errorf("failed to unmarshal request: %v", err)
			return
		}

		response := messagesResponse{
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{
				{Type: "text", Text: "Test response"},
			},
			StopReason: "end_turn",
			Usage: struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			}{
				InputTokens:  100,
				OutputTokens: 10,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient("test-api-key", WithBaseURL(server.URL))
	provider := NewCompletionProvider("test-api-key", WithCompletionClient(client))

	customPrompt := "You are an evidence critic. Respond with JSON only."

	req := llm.CompletionRequest{
		SystemPrompt: customPrompt,
		Messages:     []llm.Message{{Role: "user", Content: "Hello"}},
	}

	resp, err := provider.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if !strings.Contains(capturedRequest.System, customPrompt) {
		t.Errorf("API request System should contain %q, got %q",
			customPrompt, capturedRequest.System)
	}
	if resp.Content != "Test response" {
		t.Errorf("expected content %q, got %q", "Test response", resp.Content)
	}
	if resp.Usage.TotalTokens != 110 {
		t.Errorf("expected 110 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestComplete_EmptySystemPrompt(t *testing.T) {
	var capturedRequest messagesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
			return
		}
		if err := json.Unmarshal(body, &capturedRequest); err != nil {
			t.Errorf("failed to unmarshal: %v", err)
			return
		}

		response := messagesResponse{
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{
				{Type: "text", Text: "Test response"},
			},
			StopReason: "end_turn",
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient("test-api-key", WithBaseURL(server.URL))
	provider := NewCompletionProvider("test-api-key", WithCompletionClient(client))

	req := llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	}

	_, err := provider.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if capturedRequest.System != "" {
		t.Errorf("expected empty system, got %q", capturedRequest.System)
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"rate limited"}}`))
	}))
	defer server.Close()

	client := NewClient("test-api-key", WithBaseURL(server.URL))
	provider := NewCompletionProvider("test-api-key", WithCompletionClient(client))

	_, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	if err == nil {
		t.Fatal("expected error for rate limited response")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error should carry API message, got %v", err)
	}
}
