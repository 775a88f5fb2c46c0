package store

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/ports"
)

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore struct {
	statuses map[common.Address]core.Status
	consumed map[common.Hash]struct{}
	journal  []core.Event
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return &MemoryStore{
		statuses: make(map[common.Address]core.Status),
		consumed: make(map[common.Hash]struct{}),
	}
}

// Status returns the stored status of an account
func (s *MemoryStore) Status(ctx context.Context, account common.Address) (core.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.statuses[account], nil
}

// IsSignatureConsumed checks the consumed-signature set
func (s *MemoryStore) IsSignatureConsumed(ctx context.Context, key common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.consumed[key]
	return ok, nil
}

// Commit applies a transition under the write lock. The event must extend
// the journal by exactly one.
func (s *MemoryStore) Commit(ctx context.Context, t *core.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Event.Seq != uint64(len(s.journal))+1 {
		return core.ErrHeadConflict
	}
	if t.Consumes() {
		if _, ok := s.consumed[t.SignatureKey]; ok {
			return core.ErrSignatureAlreadyUsed
		}
		s.consumed[t.SignatureKey] = struct{}{}
	}

	s.statuses[t.Account] = t.Status
	s.journal = append(s.journal, t.Event)

	return nil
}

// Head returns the last journal entry
func (s *MemoryStore) Head(ctx context.Context) (*core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.journal) == 0 {
		return nil, nil
	}
	head := s.journal[len(s.journal)-1]
	return &head, nil
}

// Events returns a copy of the whole journal
func (s *MemoryStore) Events(ctx context.Context) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Event, len(s.journal))
	copy(out, s.journal)
	return out, nil
}

// AccountEvents returns the journal entries of one account
func (s *MemoryStore) AccountEvents(ctx context.Context, account common.Address) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Event
	for _, e := range s.journal {
		if e.Account == account {
			out = append(out, e)
		}
	}
	return out, nil
}
