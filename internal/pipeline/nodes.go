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
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/evidentiary/evidentiary-server/internal/database"
	"github.com/evidentiary/evidentiary-server/internal/llm"
)

const planSystemPrompt = `You are a research planner. Given a question, produce a short
retrieval plan: the key concepts to search for and the order to investigate them.
Respond with the plan text only, no preamble.`

const compressSystemPrompt = `You are an evidence compressor. Given a question, working notes,
and retrieved evidence passages, merge everything into concise working notes that keep
every fact relevant to the question and drop the rest. Respond with the notes only.`

const critiqueSystemPrompt = `You are an evidence critic. Judge whether the working notes are
sufficient to answer the question. Respond with JSON only, in this exact shape:
{"confidence": <number between 0 and 1>, "refinements": ["<follow-up search directive>", ...], "notes": "<optional corrected notes>"}
Return an empty refinements array when no follow-up search would help.`

const synthesizeSystemPrompt = `You answer questions strictly from the numbered evidence
passages provided. Cite every claim with the passage number in square brackets, like [1]
or [3]. If the evidence is insufficient, say so. Do not invent citations.`

// planNode asks the completion provider for a retrieval plan.
func (o *Orchestrator) planNode(ctx context.Context, s *State) (*Update, error) {
	resp, err := o.complete(ctx, llm.CompletionRequest{
		SystemPrompt: planSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: s.Question},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	plan := strings.TrimSpace(resp.Content)
	return &Update{Plan: &plan}, nil
}

// retrieveNode runs one hybrid retrieval pass. When a refinement
// directive is pending it drives the query text instead of the original
// question. Retrieval failures and timeouts are transient: the pass
// yields zero evidence and the run continues on whatever was gathered
// before.
func (o *Orchestrator) retrieveNode(ctx context.Context, s *State) (*Update, error) {
	queryText := s.Question
	if s.Directive != "" {
		queryText = s.Directive
	}

	embedCtx, cancel := context.WithTimeout(ctx, o.timeout(o.tuning.EmbeddingTimeoutSeconds))
	embedding, err := o.embedder.Embed(embedCtx, queryText)
	cancel()
	if err != nil {
		o.logger.Warn("embedding failed, retrieval pass yields no evidence",
			"error", err,
		)
		return &Update{}, nil
	}

	params := database.SearchParams{
		Query:         queryText,
		Embedding:     embedding,
		Dimensions:    o.tuning.EmbeddingDimensions,
		KLexical:      o.tuning.KLexical,
		KVector:       o.tuning.KVector,
		KFinal:        o.tuning.KFinal,
		LexicalWeight: o.tuning.LexicalWeight,
		VectorWeight:  o.tuning.VectorWeight,
		Scope:         o.primaryScope(s),
	}

	rows, err := o.search(ctx, params)
	if err != nil {
		o.logger.Warn("retrieval failed, pass yields no evidence",
			"error", err,
		)
		return &Update{}, nil
	}

	// Cross-document mode runs a second stage outside the primary
	// document, then re-ranks the merged candidates by fused score.
	if s.CrossDoc && s.DocID != "" {
		crossParams := params
		crossParams.Scope = database.Scope{ExcludeDocID: s.DocID}

		crossRows, err := o.search(ctx, crossParams)
		if err != nil {
			o.logger.Warn("cross-document retrieval failed", "error", err)
		} else {
			merged := make([]database.EvidenceRow, 0, len(rows)+len(crossRows))
			merged = append(merged, rows...)
			merged = append(merged, crossRows...)
			rows = database.RankByFusedScore(merged,
				o.tuning.LexicalWeight, o.tuning.VectorWeight, o.tuning.KFinal)
		}
	}

	touched := make([]string, 0, len(rows))
	for _, r := range rows {
		touched = append(touched, r.DocID)
	}

	return &Update{
		Evidence:    rows,
		EvidenceOp:  EvidenceAppend,
		TouchedDocs: touched,
	}, nil
}

// search runs one hybrid retrieval call under the query timeout.
func (o *Orchestrator) search(ctx context.Context, params database.SearchParams) ([]database.EvidenceRow, error) {
	queryCtx, cancel := context.WithTimeout(ctx, o.timeout(o.tuning.QueryTimeoutSeconds))
	defer cancel()
	return o.searcher.HybridSearch(queryCtx, o.source, params)
}

// primaryScope derives the retrieval scope from conversation state:
// primary document first, explicit selection second, corpus-wide
// otherwise.
func (o *Orchestrator) primaryScope(s *State) database.Scope {
	if s.DocID != "" {
		return database.Scope{DocID: s.DocID}
	}
	if len(s.SelectedDocIDs) > 0 {
		return database.Scope{DocIDs: s.SelectedDocIDs}
	}
	return database.Scope{}
}

// compressNode folds the accumulated evidence into the working notes.
func (o *Orchestrator) compressNode(ctx context.Context, s *State) (*Update, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n\n", s.Question)
	if s.Notes != "" {
		fmt.Fprintf(&prompt, "Working notes so far:\n%s\n\n", s.Notes)
	}
	prompt.WriteString("Evidence passages:\n")
	prompt.WriteString(formatEvidence(s.Evidence))

	resp, err := o.complete(ctx, llm.CompletionRequest{
		SystemPrompt: compressSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: prompt.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}

	notes := strings.TrimSpace(resp.Content)
	return &Update{Notes: &notes}, nil
}

// critiqueVerdict is the JSON contract of the critique node.
type critiqueVerdict struct {
	Confidence  float64  `json:"confidence"`
	Refinements []string `json:"refinements"`
	Notes       string   `json:"notes"`
}

// critiqueNode scores the working notes and queues refinement directives.
func (o *Orchestrator) critiqueNode(ctx context.Context, s *State) (*Update, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n\nWorking notes:\n%s\n", s.Question, s.Notes)
	fmt.Fprintf(&prompt, "\nEvidence passages gathered: %d\n", len(s.Evidence))

	resp, err := o.complete(ctx, llm.CompletionRequest{
		SystemPrompt: critiqueSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: prompt.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("critique failed: %w", err)
	}

	verdict, err := parseCritique(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("critique returned unparseable verdict: %w", err)
	}

	upd := &Update{
		Confidence:     &verdict.Confidence,
		Refinements:    append(s.Refinements, verdict.Refinements...),
		SetRefinements: true,
	}
	if verdict.Notes != "" {
		notes := verdict.Notes
		upd.Notes = &notes
	}
	return upd, nil
}

// parseCritique extracts the verdict JSON from the model output,
// tolerating prose around the object, and clamps confidence to [0,1].
func parseCritique(content string) (*critiqueVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in %q", content)
	}

	var verdict critiqueVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return nil, err
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return &verdict, nil
}

// synthesizeNode produces the cited answer from numbered evidence.
func (o *Orchestrator) synthesizeNode(ctx context.Context, s *State) (*Update, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n\n", s.Question)
	if s.Notes != "" {
		fmt.Fprintf(&prompt, "Working notes:\n%s\n\n", s.Notes)
	}
	prompt.WriteString("Evidence passages:\n")
	prompt.WriteString(formatEvidence(s.Evidence))

	resp, err := o.complete(ctx, llm.CompletionRequest{
		SystemPrompt: synthesizeSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: prompt.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	answer := strings.TrimSpace(resp.Content)
	return &Update{Answer: &answer}, nil
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// pruneCitationsNode keeps only the evidence the answer actually cites.
// Citation markers are 1-based indexes into the evidence sequence as it
// was numbered for synthesis. Duplicate chunk identities are collapsed
// here and nowhere earlier.
func (o *Orchestrator) pruneCitationsNode(_ context.Context, s *State) (*Update, error) {
	cited := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(s.Answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(s.Evidence) {
			continue
		}
		cited[n-1] = true
	}

	seen := make(map[string]bool)
	kept := make([]EvidenceItem, 0, len(cited))
	for i, item := range s.Evidence {
		if !cited[i] || seen[item.ChunkID] {
			continue
		}
		seen[item.ChunkID] = true
		kept = append(kept, item)
	}

	return &Update{Evidence: kept, EvidenceOp: EvidenceReplace}, nil
}

// formatEvidence renders evidence passages numbered for citation.
func formatEvidence(items []EvidenceItem) string {
	if len(items) == 0 {
		return "(none)\n"
	}

	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "[%d] (document %s", i+1, item.DocID)
		if item.PageStart > 0 {
			if item.PageEnd > item.PageStart {
				fmt.Fprintf(&b, ", pages %d-%d", item.PageStart, item.PageEnd)
			} else {
				fmt.Fprintf(&b, ", page %d", item.PageStart)
			}
		}
		fmt.Fprintf(&b, ")\n%s\n\n", item.Text)
	}
	return b.String()
}

// complete runs one completion call under the LLM timeout. A failed or
// timed-out completion aborts the run.
func (o *Orchestrator) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	llmCtx, cancel := context.WithTimeout(ctx, o.timeout(o.tuning.LLMTimeoutSeconds))
	defer cancel()
	return o.completer.Complete(llmCtx, req)
}

// timeout converts a configured second count to a duration.
func (o *Orchestrator) timeout(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
