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
	"time"

	"github.com/evidentiary/evidentiary-server/internal/checkpoint"
	"github.com/evidentiary/evidentiary-server/internal/config"
	"github.com/evidentiary/evidentiary-server/internal/database"
	"github.com/evidentiary/evidentiary-server/internal/llm"
)

// Node names, in state-machine order.
const (
	NodePlan           = "plan"
	NodeRetrieve       = "retrieve"
	NodeCompress       = "compress"
	NodeCritique       = "critique"
	NodeSynthesize     = "synthesize"
	NodePruneCitations = "prune_citations"
	NodeDone           = "done"
)

// Terminal reports whether a checkpointed node has no further work: a
// resume from it routes straight to done. The last checkpoint of a
// completed run is written after citation pruning, not at done.
func Terminal(node string) bool {
	return node == NodePruneCitations || node == NodeDone
}

// ErrNoQuestion is returned when a run is started without a question.
var ErrNoQuestion = errors.New("question is required")

// ErrConversationNotFound is returned when resuming a conversation that
// has no checkpoint.
var ErrConversationNotFound = errors.New("conversation not found")

// NodeError is the structured failure surfaced when a node aborts a run.
// The last successfully checkpointed state is preserved in the store, and
// Trace carries the audit trail of the nodes that completed before the
// failure so callers can still diagnose the aborted run.
type NodeError struct {
	Node  string
	Err   error
	Trace []TraceStep
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// TraceStep is one audit-trail entry: which node ran, how long it took,
// and what it decided.
type TraceStep struct {
	Node          string        `json:"node"`
	Duration      time.Duration `json:"duration"`
	EvidenceCount int           `json:"evidence_count"`
	Decision      string        `json:"decision,omitempty"`
}

// RunRequest starts one pipeline run.
type RunRequest struct {
	Question string

	// ConversationID scopes checkpointing and resumption. When empty the
	// run is independent: a throwaway identity is generated for logging
	// and nothing is persisted.
	ConversationID string

	DocID          string
	SelectedDocIDs []string
	CrossDoc       bool
}

// Result is the terminal outcome of a run: the final state plus the
// per-node audit trail.
type Result struct {
	ConversationID string      `json:"conversation_id"`
	State          *State      `json:"state"`
	Trace          []TraceStep `json:"trace"`
}

// EvidenceSearcher is the evidence-store contract the retrieval node
// depends on.
type EvidenceSearcher interface {
	HybridSearch(ctx context.Context, src config.SourceConfig, params database.SearchParams) ([]database.EvidenceRow, error)
}

// Orchestrator drives one pipeline's state machine. It exclusively owns
// state identity: nodes receive snapshots and return deltas, and no two
// nodes of the same conversation ever run concurrently.
type Orchestrator struct {
	source      config.SourceConfig
	tuning      config.Tuning
	searcher    EvidenceSearcher
	embedder    llm.EmbeddingProvider
	completer   llm.CompletionProvider
	checkpoints checkpoint.Store
	newID       func() string
	logger      *slog.Logger

	convMu    sync.Mutex
	convLocks map[string]*convLock
}

// convLock serializes runs sharing one conversation identity. The refs
// count lets the map entry be dropped once the last waiter releases it.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// OrchestratorConfig contains the dependencies for an orchestrator. All
// tuning fields must be resolved; the orchestrator applies no defaults.
type OrchestratorConfig struct {
	Source      config.SourceConfig
	Tuning      config.Tuning
	Searcher    EvidenceSearcher
	Embedder    llm.EmbeddingProvider
	Completer   llm.CompletionProvider
	Checkpoints checkpoint.Store
	NewID       func() string
	Logger      *slog.Logger
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checkpoints := cfg.Checkpoints
	if checkpoints == nil {
		checkpoints = checkpoint.NewMemoryStore()
	}

	return &Orchestrator{
		source:      cfg.Source,
		tuning:      cfg.Tuning,
		searcher:    cfg.Searcher,
		embedder:    cfg.Embedder,
		completer:   cfg.Completer,
		checkpoints: checkpoints,
		newID:       cfg.NewID,
		logger:      logger,
		convLocks:   make(map[string]*convLock),
	}
}

// lockConversation blocks until no other run of the same conversation is
// in flight, then returns the release function. Concurrent Ask or Resume
// calls carrying one conversation ID execute their node sequences back to
// back instead of interleaving checkpoints.
func (o *Orchestrator) lockConversation(conversationID string) func() {
	o.convMu.Lock()
	l, ok := o.convLocks[conversationID]
	if !ok {
		l = &convLock{}
		o.convLocks[conversationID] = l
	}
	l.refs++
	o.convMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.convMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.convLocks, conversationID)
		}
		o.convMu.Unlock()
	}
}

// Run executes the full state machine for one question and returns the
// terminal state. Exactly one answer or one structured failure results.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if req.Question == "" {
		return nil, ErrNoQuestion
	}

	state := &State{
		Question:       req.Question,
		DocID:          req.DocID,
		SelectedDocIDs: req.SelectedDocIDs,
		CrossDoc:       req.CrossDoc,
	}

	convID := req.ConversationID
	persist := convID != ""
	if convID == "" && o.newID != nil {
		convID = o.newID()
	}

	unlock := o.lockConversation(convID)
	defer unlock()

	return o.runFrom(ctx, convID, persist, NodePlan, state)
}

// Resume continues an interrupted conversation from its last completed
// node without re-executing finished nodes.
func (o *Orchestrator) Resume(ctx context.Context, conversationID string) (*Result, error) {
	unlock := o.lockConversation(conversationID)
	defer unlock()

	buf, err := o.checkpoints.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	node, state, err := decodeCheckpoint(buf)
	if err != nil {
		return nil, err
	}

	next, _ := o.route(node, state)
	if next == NodeDone {
		return &Result{ConversationID: conversationID, State: state}, nil
	}

	o.logger.Info("resuming conversation",
		"conversation_id", conversationID,
		"last_node", node,
		"next_node", next,
	)
	return o.runFrom(ctx, conversationID, true, next, state)
}

// Inspect returns the last checkpointed node and state for a
// conversation without running anything.
func (o *Orchestrator) Inspect(ctx context.Context, conversationID string) (string, *State, error) {
	buf, err := o.checkpoints.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return "", nil, ErrConversationNotFound
		}
		return "", nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeCheckpoint(buf)
}

// runFrom drives the state machine from the given node until DONE,
// checkpointing after every node transition.
func (o *Orchestrator) runFrom(
	ctx context.Context,
	convID string,
	persist bool,
	current string,
	state *State,
) (*Result, error) {
	trace := make([]TraceStep, 0, 8)

	for current != NodeDone {
		fn, err := o.nodeFunc(current)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		upd, err := fn(ctx, state.Clone())
		if err != nil {
			o.logger.Error("node failed, aborting run",
				"conversation_id", convID,
				"node", current,
				"error", err,
			)
			return nil, &NodeError{Node: current, Err: err, Trace: trace}
		}
		state.apply(upd)

		// Checkpoint before routing so a resume re-derives the same
		// deterministic decision from the saved state.
		if persist {
			o.saveCheckpoint(ctx, convID, current, state)
		}

		step := TraceStep{
			Node:          current,
			Duration:      time.Since(start),
			EvidenceCount: len(state.Evidence),
		}

		next, decision := o.route(current, state)
		step.Decision = decision
		trace = append(trace, step)

		o.logger.Debug("node completed",
			"conversation_id", convID,
			"node", current,
			"next", next,
			"duration", step.Duration,
			"evidence", step.EvidenceCount,
		)

		current = next
	}

	return &Result{ConversationID: convID, State: state, Trace: trace}, nil
}

// route returns the node following the one that just completed and, for
// critique, the router decision. On refinement it mutates the state:
// increments the iteration count and pops one directive.
func (o *Orchestrator) route(completed string, state *State) (string, string) {
	switch completed {
	case NodePlan:
		return NodeRetrieve, ""
	case NodeRetrieve:
		return NodeCompress, ""
	case NodeCompress:
		return NodeCritique, ""
	case NodeCritique:
		d := Decide(state.Confidence, o.tuning.ConfidenceThreshold,
			state.Iterations, o.tuning.MaxIterations, len(state.Refinements))
		if d == DecisionRefine {
			state.Iterations++
			state.Directive = state.Refinements[0]
			state.Refinements = state.Refinements[1:]
			return NodeRetrieve, d.String()
		}
		return NodeSynthesize, d.String()
	case NodeSynthesize:
		return NodePruneCitations, ""
	case NodePruneCitations:
		return NodeDone, ""
	}
	return NodeDone, ""
}

// nodeFunc maps a node name to its implementation.
func (o *Orchestrator) nodeFunc(node string) (func(context.Context, *State) (*Update, error), error) {
	switch node {
	case NodePlan:
		return o.planNode, nil
	case NodeRetrieve:
		return o.retrieveNode, nil
	case NodeCompress:
		return o.compressNode, nil
	case NodeCritique:
		return o.critiqueNode, nil
	case NodeSynthesize:
		return o.synthesizeNode, nil
	case NodePruneCitations:
		return o.pruneCitationsNode, nil
	}
	return nil, fmt.Errorf("unknown pipeline node %q", node)
}

// saveCheckpoint persists the state after a completed node. Checkpoint
// failures never abort a run; the store wrapper already degrades to
// volatile memory and this is the last-resort warning.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, convID, node string, state *State) {
	buf, err := encodeCheckpoint(node, state)
	if err != nil {
		o.logger.Warn("failed to encode checkpoint",
			"conversation_id", convID,
			"node", node,
			"error", err,
		)
		return
	}
	if err := o.checkpoints.Save(ctx, convID, buf); err != nil {
		o.logger.Warn("failed to save checkpoint",
			"conversation_id", convID,
			"node", node,
			"error", err,
		)
	}
}
