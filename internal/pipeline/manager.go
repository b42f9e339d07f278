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
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/evidentiary/evidentiary-server/internal/checkpoint"
	"github.com/evidentiary/evidentiary-server/internal/config"
	"github.com/evidentiary/evidentiary-server/internal/database"
	"github.com/evidentiary/evidentiary-server/internal/llm/factory"
)

// ErrPipelineNotFound is returned when a requested pipeline does not exist.
var ErrPipelineNotFound = errors.New("pipeline not found")

// Hardcoded fallbacks, applied after the pipeline > defaults cascade.
const (
	DefaultConfidenceThreshold = 0.6
	DefaultMaxIterations       = 5
	DefaultKLexical            = 20
	DefaultKVector             = 20
	DefaultKFinal              = 12
	DefaultLexicalWeight       = 0.6
	DefaultVectorWeight        = 0.4
	DefaultEmbeddingDimensions = 768
	DefaultQueryTimeout        = 10
	DefaultLLMTimeout          = 120
	DefaultEmbeddingTimeout    = 30
	DefaultMaxConcurrentRuns   = 16
)

// Manager manages the lifecycle of question-answering pipelines. All
// pipelines share one checkpoint store and one bounded run pool.
type Manager struct {
	mu          sync.RWMutex
	pipelines   map[string]*Pipeline
	config      *config.Config
	checkpoints checkpoint.Store
	runPool     *ants.Pool
	logger      *slog.Logger
}

// Pipeline is a configured pipeline with all providers initialized.
type Pipeline struct {
	name         string
	description  string
	config       config.Pipeline
	dbPool       *database.Pool
	orchestrator *Orchestrator
	runPool      *ants.Pool
	logger       *slog.Logger
}

// Info describes a pipeline for listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ManagerConfig contains configuration for creating a Manager.
type ManagerConfig struct {
	Config *config.Config
	Logger *slog.Logger
}

// NewManager creates a pipeline manager from configuration.
func NewManager(cfg *config.Config) (*Manager, error) {
	return NewManagerWithLogger(ManagerConfig{
		Config: cfg,
		Logger: slog.Default(),
	})
}

// NewManagerWithLogger creates a pipeline manager with a custom logger.
func NewManagerWithLogger(cfg ManagerConfig) (*Manager, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRuns := cfg.Config.Defaults.Tuning.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = DefaultMaxConcurrentRuns
	}
	runPool, err := ants.NewPool(maxRuns, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create run pool: %w", err)
	}

	m := &Manager{
		pipelines:   make(map[string]*Pipeline),
		config:      cfg.Config,
		checkpoints: newCheckpointStore(cfg.Config.Checkpoint, logger),
		runPool:     runPool,
		logger:      logger,
	}

	ctx := context.Background()
	for _, pCfg := range cfg.Config.Pipelines {
		p, err := m.createPipeline(ctx, pCfg)
		if err != nil {
			for _, existing := range m.pipelines {
				existing.Close()
			}
			runPool.Release()
			return nil, fmt.Errorf("failed to create pipeline %s: %w", pCfg.Name, err)
		}
		m.pipelines[pCfg.Name] = p
		logger.Info("pipeline created",
			"name", pCfg.Name,
			"embedding_provider", pCfg.EmbeddingLLM.Provider,
			"answer_provider", pCfg.AnswerLLM.Provider,
		)
	}

	return m, nil
}

// newCheckpointStore builds the configured checkpoint backend. An
// unreachable Redis degrades to volatile memory instead of failing
// startup; the fallback wrapper keeps retrying the primary per call.
func newCheckpointStore(cfg config.CheckpointConfig, logger *slog.Logger) checkpoint.Store {
	if cfg.Backend != "redis" {
		return checkpoint.NewMemoryStore()
	}

	redisStore, err := checkpoint.NewRedisStore(context.Background(), cfg.Redis)
	if err != nil {
		logger.Warn("checkpoint store unavailable at startup, degrading to volatile memory",
			"addr", cfg.Redis.Addr,
			"error", err,
		)
		return checkpoint.NewFallbackStore(nil, logger)
	}
	return checkpoint.NewFallbackStore(redisStore, logger)
}

// createPipeline creates a single pipeline with all providers initialized.
func (m *Manager) createPipeline(ctx context.Context, pCfg config.Pipeline) (*Pipeline, error) {
	pipelineLogger := m.logger.With("pipeline", pCfg.Name)

	tuning := m.resolveTuning(pCfg.Tuning)

	dbPool, err := database.NewPool(ctx, pCfg.Database, pipelineLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	keyLoader := config.NewAPIKeyLoader(pCfg.APIKeys)
	apiKeys, err := keyLoader.LoadKeysForPipeline(pCfg)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to load API keys: %w", err)
	}

	embedder, err := factory.NewEmbeddingProvider(
		pCfg.EmbeddingLLM.Provider,
		pCfg.EmbeddingLLM.Model,
		tuning.EmbeddingDimensions,
		apiKeys,
	)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	completer, err := factory.NewCompletionProvider(
		pCfg.AnswerLLM.Provider,
		pCfg.AnswerLLM.Model,
		apiKeys,
	)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to create completion provider: %w", err)
	}

	if embedder.Dimensions() != tuning.EmbeddingDimensions {
		dbPool.Close()
		return nil, fmt.Errorf("embedding provider produces %d dimensions, configured %d",
			embedder.Dimensions(), tuning.EmbeddingDimensions)
	}

	orchestrator := NewOrchestrator(OrchestratorConfig{
		Source:      pCfg.Source,
		Tuning:      tuning,
		Searcher:    dbPool,
		Embedder:    embedder,
		Completer:   completer,
		Checkpoints: m.checkpoints,
		NewID:       uuid.NewString,
		Logger:      pipelineLogger,
	})

	return &Pipeline{
		name:         pCfg.Name,
		description:  pCfg.Description,
		config:       pCfg,
		dbPool:       dbPool,
		orchestrator: orchestrator,
		runPool:      m.runPool,
		logger:       pipelineLogger,
	}, nil
}

// resolveTuning fills unset knobs from the hardcoded defaults. The
// pipeline > global-defaults cascade already ran in the config loader.
func (m *Manager) resolveTuning(t config.Tuning) config.Tuning {
	if t.ConfidenceThreshold <= 0 {
		t.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if t.MaxIterations <= 0 {
		t.MaxIterations = DefaultMaxIterations
	}
	if t.KLexical <= 0 {
		t.KLexical = DefaultKLexical
	}
	if t.KVector <= 0 {
		t.KVector = DefaultKVector
	}
	if t.KFinal <= 0 {
		t.KFinal = DefaultKFinal
	}
	if t.LexicalWeight <= 0 {
		t.LexicalWeight = DefaultLexicalWeight
	}
	if t.VectorWeight <= 0 {
		t.VectorWeight = DefaultVectorWeight
	}
	if t.EmbeddingDimensions <= 0 {
		t.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if t.QueryTimeoutSeconds <= 0 {
		t.QueryTimeoutSeconds = DefaultQueryTimeout
	}
	if t.LLMTimeoutSeconds <= 0 {
		t.LLMTimeoutSeconds = DefaultLLMTimeout
	}
	if t.EmbeddingTimeoutSeconds <= 0 {
		t.EmbeddingTimeoutSeconds = DefaultEmbeddingTimeout
	}
	if t.MaxConcurrentRuns <= 0 {
		t.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}
	return t
}

// List returns information about all available pipelines.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		infos = append(infos, Info{
			Name:        p.name,
			Description: p.description,
		})
	}

	return infos
}

// Get retrieves a pipeline by name.
func (m *Manager) Get(name string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pipelines[name]
	if !ok {
		return nil, ErrPipelineNotFound
	}

	return p, nil
}

// Inspect returns the last checkpointed node and state of a conversation
// belonging to any pipeline. Checkpoints are keyed solely by
// conversation identity, so lookup does not need the pipeline name.
func (m *Manager) Inspect(ctx context.Context, conversationID string) (string, *State, error) {
	buf, err := m.checkpoints.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return "", nil, ErrConversationNotFound
		}
		return "", nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeCheckpoint(buf)
}

// Ask runs the full pipeline for one question on the shared bounded run
// pool, so a burst of requests cannot spawn unbounded concurrent runs.
func (p *Pipeline) Ask(ctx context.Context, req RunRequest) (*Result, error) {
	return p.submit(ctx, func(runCtx context.Context) (*Result, error) {
		return p.orchestrator.Run(runCtx, req)
	})
}

// Resume continues an interrupted conversation on the shared run pool.
func (p *Pipeline) Resume(ctx context.Context, conversationID string) (*Result, error) {
	return p.submit(ctx, func(runCtx context.Context) (*Result, error) {
		return p.orchestrator.Resume(runCtx, conversationID)
	})
}

type runOutcome struct {
	result *Result
	err    error
}

// submit schedules one run on the bounded pool and waits for it or for
// caller cancellation.
func (p *Pipeline) submit(
	ctx context.Context,
	run func(context.Context) (*Result, error),
) (*Result, error) {
	outCh := make(chan runOutcome, 1)

	err := p.runPool.Submit(func() {
		res, err := run(ctx)
		outCh <- runOutcome{result: res, err: err}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule run: %w", err)
	}

	select {
	case out := <-outCh:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Description returns the pipeline description.
func (p *Pipeline) Description() string {
	return p.description
}

// Close releases resources associated with the pipeline.
func (p *Pipeline) Close() {
	if p.dbPool != nil {
		p.dbPool.Close()
	}
}

// Close shuts down the manager and releases resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pipelines {
		p.Close()
	}
	m.pipelines = nil

	if m.runPool != nil {
		m.runPool.Release()
	}

	if closer, ok := m.checkpoints.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close checkpoint store: %w", err)
		}
	}

	return nil
}
