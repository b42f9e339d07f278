//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// FallbackStore wraps a primary Store and degrades to a volatile in-memory
// store when the primary errors. Checkpoint unavailability is never fatal:
// a run completes in volatile memory and the degradation is logged.
type FallbackStore struct {
	primary Store
	memory  *MemoryStore
	logger  *slog.Logger

	warnOnce sync.Once
}

// NewFallbackStore wraps primary with in-memory degradation. A nil primary
// yields a purely volatile store.
func NewFallbackStore(primary Store, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{
		primary: primary,
		memory:  NewMemoryStore(),
		logger:  logger,
	}
}

func (s *FallbackStore) degraded(op string, err error) {
	s.warnOnce.Do(func() {
		s.logger.Warn("checkpoint store unavailable, degrading to volatile memory",
			"op", op,
			"error", err,
		)
	})
}

// Save writes through to the primary when possible, falling back to memory.
// The memory copy is always kept so a mid-run primary outage still leaves
// the current conversation resumable in-process.
func (s *FallbackStore) Save(ctx context.Context, conversationID string, state []byte) error {
	if err := s.memory.Save(ctx, conversationID, state); err != nil {
		return err
	}

	if s.primary == nil {
		return nil
	}
	if err := s.primary.Save(ctx, conversationID, state); err != nil {
		s.degraded("save", err)
	}
	return nil
}

// Load prefers the primary and falls back to the in-memory copy.
func (s *FallbackStore) Load(ctx context.Context, conversationID string) ([]byte, error) {
	if s.primary != nil {
		state, err := s.primary.Load(ctx, conversationID)
		if err == nil {
			return state, nil
		}
		if errors.Is(err, ErrNotFound) {
			return s.memory.Load(ctx, conversationID)
		}
		s.degraded("load", err)
	}

	return s.memory.Load(ctx, conversationID)
}

// Delete removes the checkpoint from both layers.
func (s *FallbackStore) Delete(ctx context.Context, conversationID string) error {
	_ = s.memory.Delete(ctx, conversationID)

	if s.primary != nil {
		if err := s.primary.Delete(ctx, conversationID); err != nil {
			s.degraded("delete", err)
		}
	}
	return nil
}

// Close releases the primary store when it holds external resources.
func (s *FallbackStore) Close() error {
	if closer, ok := s.primary.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

var _ Store = (*FallbackStore)(nil)
