//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validPipeline() Pipeline {
	return Pipeline{
		Name: "docs",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "corpus",
		},
		EmbeddingLLM: LLMConfig{Provider: "ollama", Model: "nomic-embed-text"},
		AnswerLLM:    LLMConfig{Provider: "ollama", Model: "llama3.2"},
	}
}

func TestValidateRequiresPipelines(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty pipelines")
	}
	if !strings.Contains(err.Error(), "at least one pipeline") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateCheckpointBackend(t *testing.T) {
	tests := []struct {
		name    string
		cp      CheckpointConfig
		wantErr string
	}{
		{"memory ok", CheckpointConfig{Backend: "memory"}, ""},
		{"empty ok", CheckpointConfig{}, ""},
		{"redis needs addr", CheckpointConfig{Backend: "redis"}, "checkpoint.redis.addr"},
		{"redis with addr ok", CheckpointConfig{Backend: "redis", Redis: RedisConfig{Addr: "localhost:6379"}}, ""},
		{"unknown backend", CheckpointConfig{Backend: "dynamo"}, "checkpoint.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Checkpoint = tt.cp
			cfg.Pipelines = []Pipeline{validPipeline()}

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateTuningRanges(t *testing.T) {
	cfg := DefaultConfig()
	p := validPipeline()
	p.Tuning.ConfidenceThreshold = 1.5
	p.Tuning.MaxIterations = -1
	cfg.Pipelines = []Pipeline{p}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "confidence_threshold") {
		t.Errorf("missing confidence_threshold error: %v", err)
	}
	if !strings.Contains(err.Error(), "max_iterations") {
		t.Errorf("missing max_iterations error: %v", err)
	}
}

func TestValidateDuplicatePipelineNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipelines = []Pipeline{validPipeline(), validPipeline()}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate pipeline name") {
		t.Fatalf("expected duplicate-name error, got %v", err)
	}
}

func TestMergeTuning(t *testing.T) {
	defaults := Tuning{
		ConfidenceThreshold: 0.6,
		MaxIterations:       5,
		KLexical:            20,
		KVector:             20,
		KFinal:              12,
		LexicalWeight:       0.6,
		VectorWeight:        0.4,
		EmbeddingDimensions: 768,
	}

	got := mergeTuning(Tuning{MaxIterations: 3, EmbeddingDimensions: 512}, defaults)

	if got.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want pipeline override 3", got.MaxIterations)
	}
	if got.EmbeddingDimensions != 512 {
		t.Errorf("EmbeddingDimensions = %d, want pipeline override 512", got.EmbeddingDimensions)
	}
	if got.ConfidenceThreshold != 0.6 {
		t.Errorf("ConfidenceThreshold = %v, want inherited 0.6", got.ConfidenceThreshold)
	}
	if got.KFinal != 12 {
		t.Errorf("KFinal = %d, want inherited 12", got.KFinal)
	}
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
server:
  port: 9090
checkpoint:
  backend: memory
defaults:
  tuning:
    embedding_dimensions: 768
pipelines:
  - name: manuals
    database:
      host: localhost
      port: 5432
      database: corpus
    embedding_llm:
      provider: ollama
      model: nomic-embed-text
    answer_llm:
      provider: ollama
      model: llama3.2
`
	dir := t.TempDir()
	path := filepath.Join(dir, "evidentiary-server.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFromFile(path)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Pipelines) != 1 {
		t.Fatalf("pipelines = %d, want 1", len(cfg.Pipelines))
	}

	p := cfg.Pipelines[0]
	if p.Source.Table != "chunks" {
		t.Errorf("source table = %q, want default chunks", p.Source.Table)
	}
	if p.Source.Language != "english" {
		t.Errorf("source language = %q, want default english", p.Source.Language)
	}
	if p.Tuning.EmbeddingDimensions != 768 {
		t.Errorf("embedding dimensions = %d, want inherited 768", p.Tuning.EmbeddingDimensions)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
