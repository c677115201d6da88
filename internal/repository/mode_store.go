package repository

import (
	"context"
	"sync"

	"lendingledger/internal/model"
)

// ModeStore holds the process-wide loan mode.
type ModeStore interface {
	Get(ctx context.Context) model.Mode
	Set(ctx context.Context, mode model.Mode) (previous model.Mode)
}

type memoryModeStore struct {
	mu   sync.RWMutex
	mode model.Mode
}

// NewMemoryModeStore returns a ModeStore starting at initial. Writers are
// serialized; readers never observe a partial update.
func NewMemoryModeStore(initial model.Mode) ModeStore {
	if !initial.Valid() {
		initial = model.DefaultMode
	}
	return &memoryModeStore{mode: initial}
}

func (s *memoryModeStore) Get(_ context.Context) model.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *memoryModeStore) Set(_ context.Context, mode model.Mode) model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.mode
	s.mode = mode
	return previous
}
