package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrConflict is returned when an entry does not extend the stored chain
var ErrConflict = errors.New("journal entry does not extend the chain")

// Store persists sealed entries in sequence order
type Store interface {
	Append(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want := uint64(len(s.entries)) + 1; e.Seq != want {
		return fmt.Errorf("%w: seq %d, expected %d", ErrConflict, e.Seq, want)
	}
	e.Data = append([]byte(nil), e.Data...)
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...), nil
}
