package journal

import (
	"bytes"
	"fmt"
)

// BreakType categorizes the type of chain break
type BreakType string

const (
	BreakTypeHashMismatch    BreakType = "hash_mismatch"
	BreakTypeMissingPrevious BreakType = "missing_previous"
	BreakTypeSequenceGap     BreakType = "sequence_gap"
	BreakTypeCorruptedEntry  BreakType = "corrupted_entry"
)

// ChainBreak describes the first point where a journal stops verifying
type ChainBreak struct {
	Seq         uint64
	Type        BreakType
	Description string
}

func (b *ChainBreak) Error() string {
	return fmt.Sprintf("journal chain broken at seq %d (%s): %s", b.Seq, b.Type, b.Description)
}

// Verify checks that entries start at seq 1, have no gaps, link to their
// predecessor, hash correctly, and decode. It returns a *ChainBreak for the
// first problem found.
func Verify(entries []Entry) error {
	var prev Hash
	for i, e := range entries {
		want := uint64(i) + 1
		if e.Seq != want {
			return &ChainBreak{Seq: e.Seq, Type: BreakTypeSequenceGap,
				Description: fmt.Sprintf("expected sequence %d, got %d", want, e.Seq)}
		}
		if e.PrevHash != prev {
			return &ChainBreak{Seq: e.Seq, Type: BreakTypeMissingPrevious,
				Description: fmt.Sprintf("previous hash %s does not match %s", e.PrevHash, prev)}
		}
		if computed := chain(prev, e.Data); !bytes.Equal(computed[:], e.Hash[:]) {
			return &ChainBreak{Seq: e.Seq, Type: BreakTypeHashMismatch,
				Description: fmt.Sprintf("stored hash %s, computed %s", e.Hash, computed)}
		}
		ev, err := e.Event()
		if err != nil {
			return &ChainBreak{Seq: e.Seq, Type: BreakTypeCorruptedEntry, Description: err.Error()}
		}
		if ev.Type != e.Type || ev.AuctionID() != e.AuctionID {
			return &ChainBreak{Seq: e.Seq, Type: BreakTypeCorruptedEntry,
				Description: "indexed columns disagree with sealed data"}
		}
		prev = e.Hash
	}
	return nil
}
