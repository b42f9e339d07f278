//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package checkpoint persists pipeline state between node transitions,
// keyed by conversation identity, so a paused or crashed conversation can
// resume from its last completed node.
package checkpoint

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no checkpoint exists for a conversation.
var ErrNotFound = errors.New("checkpoint not found")

// Store saves and loads serialized pipeline state. Implementations must be
// safe for concurrent use; distinct conversations checkpoint concurrently.
type Store interface {
	// Save persists the state blob for a conversation, replacing any
	// previous checkpoint.
	Save(ctx context.Context, conversationID string, state []byte) error

	// Load returns the last saved state blob for a conversation, or
	// ErrNotFound.
	Load(ctx context.Context, conversationID string) ([]byte, error)

	// Delete removes a conversation's checkpoint. Deleting a missing
	// checkpoint is not an error.
	Delete(ctx context.Context, conversationID string) error
}

// MemoryStore is a volatile in-process Store. It backs single-process
// deployments and serves as the degradation target when the configured
// backend is unreachable.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
	}
}

// Save stores a copy of the state blob.
func (s *MemoryStore) Save(_ context.Context, conversationID string, state []byte) error {
	buf := make([]byte, len(state))
	copy(buf, state)

	s.mu.Lock()
	s.states[conversationID] = buf
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the last saved state blob.
func (s *MemoryStore) Load(_ context.Context, conversationID string) ([]byte, error) {
	s.mu.RLock()
	state, ok := s.states[conversationID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	buf := make([]byte, len(state))
	copy(buf, state)
	return buf, nil
}

// Delete removes a conversation's checkpoint.
func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.states, conversationID)
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
