//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmbedBatch_SingleRequest(t *testing.T) {
	var captured embedRequest
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want /api/embed", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{{0.25, 0.5}, {0.75, 1.0}},
		})
	}))
	defer server.Close()

	p := NewEmbeddingProvider(
		WithEmbeddingClient(NewClient(WithBaseURL(server.URL))),
		WithEmbeddingModel("nomic-embed-text"),
	)

	vectors, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	if requests != 1 {
		t.Errorf("made %d requests, want 1", requests)
	}
	if len(captured.Input) != 2 || captured.Input[1] != "second" {
		t.Errorf("request input = %v", captured.Input)
	}
	if vectors[1][1] != 1.0 {
		t.Errorf("vectors = %v", vectors)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{},
		})
	}))
	defer server.Close()

	p := NewEmbeddingProvider(WithEmbeddingClient(NewClient(WithBaseURL(server.URL))))

	_, err := p.Embed(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "count mismatch") {
		t.Errorf("expected count mismatch error, got %v", err)
	}
}

func TestEmbed_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model not found"}`))
	}))
	defer server.Close()

	p := NewEmbeddingProvider(WithEmbeddingClient(NewClient(WithBaseURL(server.URL))))

	_, err := p.Embed(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("expected API error, got %v", err)
	}
}
