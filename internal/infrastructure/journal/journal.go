package journal

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
)

// Journal seals ledger events into a hash chain and writes them to a Store
type Journal struct {
	store  Store
	logger *zap.Logger

	mu   sync.Mutex
	head Hash
	seq  uint64
}

// Open loads and verifies the stored chain and returns the decoded events
// for replay. New appends continue from the stored head.
func Open(ctx context.Context, store Store, logger *zap.Logger) (*Journal, []auction.Event, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load journal: %w", err)
	}
	if err := Verify(entries); err != nil {
		return nil, nil, err
	}

	events := make([]auction.Event, 0, len(entries))
	for _, e := range entries {
		ev, err := e.Event()
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
	}

	j := &Journal{store: store, logger: logger}
	if n := len(entries); n > 0 {
		j.head = entries[n-1].Hash
		j.seq = entries[n-1].Seq
	}

	logger.Info("journal opened",
		zap.Int("entries", len(entries)),
		zap.String("head", j.head.String()),
	)
	return j, events, nil
}

// Append seals ev on top of the current head and stores it
func (j *Journal) Append(ctx context.Context, ev auction.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if ev.Seq != j.seq+1 {
		return fmt.Errorf("%w: seq %d after %d", ErrConflict, ev.Seq, j.seq)
	}
	entry, err := Seal(j.head, ev)
	if err != nil {
		return err
	}
	if err := j.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("store entry %d: %w", entry.Seq, err)
	}

	j.head = entry.Hash
	j.seq = entry.Seq
	j.logger.Debug("journal entry appended",
		zap.Uint64("seq", entry.Seq),
		zap.String("type", string(entry.Type)),
		zap.String("hash", entry.Hash.String()),
	)
	return nil
}

// Head returns the latest sequence number and hash
func (j *Journal) Head() (uint64, Hash) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq, j.head
}
