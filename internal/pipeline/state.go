//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline implements the iterative retrieval-and-refinement
// state machine: plan, retrieve, compress, critique, conditionally
// refine, synthesize, prune citations.
package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/evidentiary/evidentiary-server/internal/database"
)

// EvidenceItem is one retrieved chunk with its retrieval scores. A chunk
// that ranks on both the lexical and the vector branch appears twice,
// each row carrying one non-zero score.
type EvidenceItem = database.EvidenceRow

// State is the record threaded through every node of one conversation.
// Nodes receive a snapshot and return an Update; only the orchestrator
// writes to State.
type State struct {
	Question string `json:"question"`
	Plan     string `json:"plan,omitempty"`

	Evidence []EvidenceItem `json:"evidence,omitempty"`
	Notes    string         `json:"notes,omitempty"`

	Answer     string  `json:"answer,omitempty"`
	Confidence float64 `json:"confidence"`

	Iterations  int      `json:"iterations"`
	Refinements []string `json:"refinements,omitempty"`

	// Directive is the refinement directive consumed by the current
	// retrieval pass; empty on the initial pass.
	Directive string `json:"directive,omitempty"`

	// DocID scopes retrieval to a primary document. DocIDs tracks every
	// document touched across the conversation and is not a filter.
	// SelectedDocIDs is an explicit multi-document inclusion filter.
	DocID          string   `json:"doc_id,omitempty"`
	DocIDs         []string `json:"doc_ids,omitempty"`
	SelectedDocIDs []string `json:"selected_doc_ids,omitempty"`

	// CrossDoc enables a second retrieval stage outside the primary
	// document on every pass.
	CrossDoc bool `json:"cross_doc,omitempty"`
}

// Clone returns a deep copy so nodes can be handed a snapshot that later
// merges cannot alias.
func (s *State) Clone() *State {
	c := *s
	if s.Evidence != nil {
		c.Evidence = make([]EvidenceItem, len(s.Evidence))
		copy(c.Evidence, s.Evidence)
	}
	if s.Refinements != nil {
		c.Refinements = make([]string, len(s.Refinements))
		copy(c.Refinements, s.Refinements)
	}
	if s.DocIDs != nil {
		c.DocIDs = make([]string, len(s.DocIDs))
		copy(c.DocIDs, s.DocIDs)
	}
	if s.SelectedDocIDs != nil {
		c.SelectedDocIDs = make([]string, len(s.SelectedDocIDs))
		copy(c.SelectedDocIDs, s.SelectedDocIDs)
	}
	return &c
}

// EvidenceOp selects how an Update's Evidence interacts with the
// accumulated evidence.
type EvidenceOp int

const (
	// EvidenceKeep leaves accumulated evidence untouched.
	EvidenceKeep EvidenceOp = iota

	// EvidenceAppend adds the update's rows after the existing ones.
	EvidenceAppend

	// EvidenceReplace discards existing rows in favor of the update's.
	EvidenceReplace
)

// Update is a node's partial result. Nil pointer and zero-value fields
// mean "no change"; the orchestrator merges set fields last-writer-wins.
type Update struct {
	Plan       *string
	Notes      *string
	Answer     *string
	Confidence *float64

	Evidence   []EvidenceItem
	EvidenceOp EvidenceOp

	// Refinements replaces the pending directive queue when
	// SetRefinements is true, so critique can both queue and clear.
	Refinements    []string
	SetRefinements bool

	// TouchedDocs is merged into State.DocIDs as a set.
	TouchedDocs []string
}

// apply merges an update into the state, last writer wins per field.
func (s *State) apply(u *Update) {
	if u == nil {
		return
	}
	if u.Plan != nil {
		s.Plan = *u.Plan
	}
	if u.Notes != nil {
		s.Notes = *u.Notes
	}
	if u.Answer != nil {
		s.Answer = *u.Answer
	}
	if u.Confidence != nil {
		s.Confidence = *u.Confidence
	}

	switch u.EvidenceOp {
	case EvidenceAppend:
		s.Evidence = append(s.Evidence, u.Evidence...)
	case EvidenceReplace:
		s.Evidence = u.Evidence
	}

	if u.SetRefinements {
		s.Refinements = u.Refinements
	}

	for _, docID := range u.TouchedDocs {
		s.addDoc(docID)
	}
}

// addDoc records a document in the touched set, kept sorted and unique.
func (s *State) addDoc(docID string) {
	if docID == "" {
		return
	}
	i := sort.SearchStrings(s.DocIDs, docID)
	if i < len(s.DocIDs) && s.DocIDs[i] == docID {
		return
	}
	s.DocIDs = append(s.DocIDs, "")
	copy(s.DocIDs[i+1:], s.DocIDs[i:])
	s.DocIDs[i] = docID
}

// checkpointEnvelope is the serialized form written to the checkpoint
// store after every node transition.
type checkpointEnvelope struct {
	Node  string `json:"node"`
	State *State `json:"state"`
}

// encodeCheckpoint serializes a state snapshot taken after the named
// node completed.
func encodeCheckpoint(node string, s *State) ([]byte, error) {
	buf, err := json.Marshal(checkpointEnvelope{Node: node, State: s})
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return buf, nil
}

// decodeCheckpoint restores the last completed node and its state.
func decodeCheckpoint(buf []byte) (string, *State, error) {
	var env checkpointEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return "", nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if env.State == nil {
		return "", nil, fmt.Errorf("checkpoint has no state")
	}
	return env.Node, env.State, nil
}
