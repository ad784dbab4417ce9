package ledger

import (
	"context"
	"sync"
)

// Store persists the ledger. Update applies fn atomically: either every
// mutation fn made is committed or none is. Updates are totally ordered.
//
// View passes the committed state itself. fn must not modify it. Update
// replaces the committed state instead of mutating it, so anything read
// during View stays a consistent snapshot after fn returns.
type Store interface {
	Update(ctx context.Context, fn func(*State) error) error
	View(ctx context.Context, fn func(*State) error) error
}

// MemoryStore keeps the ledger in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: NewState()}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(*State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.Clone()
	if err := fn(work); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(*State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}
