//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/panjf2000/ants/v2"

	"github.com/evidentiary/evidentiary-server/internal/checkpoint"
	"github.com/evidentiary/evidentiary-server/internal/config"
	"github.com/evidentiary/evidentiary-server/internal/llm"
)

// newTestManager creates a Manager with mock pipelines, bypassing
// database and LLM provider initialization.
func newTestManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()

	runPool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("failed to create run pool: %v", err)
	}

	store := checkpoint.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := &Manager{
		pipelines:   make(map[string]*Pipeline),
		config:      cfg,
		checkpoints: store,
		runPool:     runPool,
		logger:      logger,
	}

	for _, pCfg := range cfg.Pipelines {
		orchestrator := NewOrchestrator(OrchestratorConfig{
			Source:      pCfg.Source,
			Tuning:      m.resolveTuning(pCfg.Tuning),
			Searcher:    &MockSearcher{},
			Embedder:    &MockEmbeddingProvider{},
			Completer:   newScriptedCompleter(nil, "Managed answer [1]."),
			Checkpoints: store,
			NewID:       func() string { return "generated-id" },
			Logger:      logger,
		})

		m.pipelines[pCfg.Name] = &Pipeline{
			name:         pCfg.Name,
			description:  pCfg.Description,
			config:       pCfg,
			orchestrator: orchestrator,
			runPool:      runPool,
			logger:       logger,
		}
	}

	return m
}

func testManagerConfig() *config.Config {
	return &config.Config{
		Pipelines: []config.Pipeline{
			{
				Name:        "handbook",
				Description: "Employee handbook corpus",
				Database: config.DatabaseConfig{
					Host:     "localhost",
					Port:     5432,
					Database: "handbook",
				},
				Source: config.SourceConfig{Table: "chunks", Language: "english"},
				EmbeddingLLM: config.LLMConfig{
					Provider: "ollama",
					Model:    "nomic-embed-text",
				},
				AnswerLLM: config.LLMConfig{
					Provider: "anthropic",
					Model:    "claude-sonnet-4-20250514",
				},
			},
			{
				Name:        "contracts",
				Description: "Contract archive",
				Database: config.DatabaseConfig{
					Host:     "localhost",
					Port:     5432,
					Database: "contracts",
				},
				Source: config.SourceConfig{Table: "legal.chunks", Language: "english"},
				EmbeddingLLM: config.LLMConfig{
					Provider: "openai",
					Model:    "text-embedding-3-small",
				},
				AnswerLLM: config.LLMConfig{
					Provider: "openai",
					Model:    "gpt-4o-mini",
				},
				Tuning: config.Tuning{MaxIterations: 2, KFinal: 6},
			},
		},
	}
}

func TestManager_List(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	defer func() { _ = m.Close() }()

	infos := m.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 pipelines, got %d", len(infos))
	}

	names := make(map[string]bool)
	for _, info := range infos {
		names[info.Name] = true
	}
	if !names["handbook"] || !names["contracts"] {
		t.Errorf("pipeline names = %v", names)
	}
}

func TestManager_Get(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	defer func() { _ = m.Close() }()

	p, err := m.Get("handbook")
	if err != nil {
		t.Fatalf("failed to get pipeline: %v", err)
	}
	if p.Name() != "handbook" {
		t.Errorf("name = %q", p.Name())
	}
	if p.Description() != "Employee handbook corpus" {
		t.Errorf("description = %q", p.Description())
	}
}

func TestManager_Get_NotFound(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	defer func() { _ = m.Close() }()

	_, err := m.Get("nonexistent")
	if !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("expected ErrPipelineNotFound, got %v", err)
	}
}

func TestPipeline_Ask(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	defer func() { _ = m.Close() }()

	p, err := m.Get("handbook")
	if err != nil {
		t.Fatalf("failed to get pipeline: %v", err)
	}

	result, err := p.Ask(context.Background(), RunRequest{
		Question: "how many vacation days do I have",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.State.Answer == "" {
		t.Error("expected an answer")
	}
	if len(result.Trace) == 0 {
		t.Error("expected an audit trail")
	}
}

func TestPipeline_AskCancelled(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	defer func() { _ = m.Close() }()

	p, err := m.Get("handbook")
	if err != nil {
		t.Fatalf("failed to get pipeline: %v", err)
	}

	// A completer that honors cancellation keeps the run pending until
	// the caller gives up.
	p.orchestrator.completer = &blockingCompleter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Ask(ctx, RunRequest{Question: "q"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

type blockingCompleter struct{}

func (b *blockingCompleter) Complete(
	ctx context.Context,
	_ llm.CompletionRequest,
) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingCompleter) ModelName() string { return "blocking" }

func TestManager_Inspect(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	defer func() { _ = m.Close() }()

	p, err := m.Get("handbook")
	if err != nil {
		t.Fatalf("failed to get pipeline: %v", err)
	}

	if _, err := p.Ask(context.Background(), RunRequest{
		Question:       "how long is parental leave",
		ConversationID: "conv-1",
	}); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	node, state, err := m.Inspect(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if node != NodePruneCitations {
		t.Errorf("last node = %q, want %q", node, NodePruneCitations)
	}
	if state.Answer == "" {
		t.Error("checkpointed state lacks answer")
	}

	if _, _, err := m.Inspect(context.Background(), "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestResolveTuning(t *testing.T) {
	m := &Manager{}

	resolved := m.resolveTuning(config.Tuning{})
	if resolved.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("threshold = %v", resolved.ConfidenceThreshold)
	}
	if resolved.MaxIterations != DefaultMaxIterations {
		t.Errorf("max iterations = %d", resolved.MaxIterations)
	}
	if resolved.KLexical != DefaultKLexical || resolved.KVector != DefaultKVector ||
		resolved.KFinal != DefaultKFinal {
		t.Errorf("k values = %d/%d/%d", resolved.KLexical, resolved.KVector, resolved.KFinal)
	}
	if resolved.LexicalWeight != DefaultLexicalWeight || resolved.VectorWeight != DefaultVectorWeight {
		t.Errorf("weights = %v/%v", resolved.LexicalWeight, resolved.VectorWeight)
	}
	if resolved.EmbeddingDimensions != DefaultEmbeddingDimensions {
		t.Errorf("dimensions = %d", resolved.EmbeddingDimensions)
	}

	partial := m.resolveTuning(config.Tuning{MaxIterations: 2, KFinal: 6})
	if partial.MaxIterations != 2 || partial.KFinal != 6 {
		t.Errorf("explicit values overridden: %+v", partial)
	}
	if partial.KLexical != DefaultKLexical {
		t.Errorf("unset value not defaulted: %+v", partial)
	}
}

func TestNewCheckpointStore_Memory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := newCheckpointStore(config.CheckpointConfig{Backend: "memory"}, logger)
	if _, ok := store.(*checkpoint.MemoryStore); !ok {
		t.Errorf("expected MemoryStore, got %T", store)
	}
}

func TestNewCheckpointStore_RedisUnreachable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// No Redis listens here; startup must degrade, not fail.
	store := newCheckpointStore(config.CheckpointConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Addr: "127.0.0.1:1"},
	}, logger)

	if _, ok := store.(*checkpoint.FallbackStore); !ok {
		t.Fatalf("expected FallbackStore, got %T", store)
	}

	// The degraded store still round-trips checkpoints in memory.
	ctx := context.Background()
	if err := store.Save(ctx, "c1", []byte("state")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	buf, err := store.Load(ctx, "c1")
	if err != nil || string(buf) != "state" {
		t.Fatalf("Load = %q, %v", buf, err)
	}
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(t, testManagerConfig())

	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if m.pipelines != nil {
		t.Error("expected pipelines to be nil after close")
	}
}
