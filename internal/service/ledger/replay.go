package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
)

// Restore rebuilds state from previously journaled events. The ledger must
// be empty. Events are applied without journaling, publishing or paying,
// and must form a gap-free sequence starting at 1.
func (l *Ledger) Restore(ctx context.Context, events []auction.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seq != 0 || len(l.auctions) != 0 {
		return fmt.Errorf("restore requires an empty ledger (seq=%d)", l.seq)
	}

	for _, ev := range events {
		if ev.Seq != l.seq+1 {
			return fmt.Errorf("event seq %d out of order, expected %d", ev.Seq, l.seq+1)
		}
		if err := l.replay(ev); err != nil {
			return fmt.Errorf("replay seq %d (%s): %w", ev.Seq, ev.Type, err)
		}
		l.seq = ev.Seq
	}
	l.metrics.SetAuctions(len(l.auctions))

	l.logger.Info("ledger restored",
		zap.Int("events", len(events)),
		zap.Int("auctions", len(l.auctions)),
		zap.Uint64("seq", l.seq),
	)
	return nil
}

func (l *Ledger) replay(ev auction.Event) error {
	switch p := ev.Payload.(type) {
	case auction.AuctionCreated:
		return l.replayCreated(ev, p)
	case *auction.AuctionCreated:
		return l.replayCreated(ev, *p)
	case auction.BidPlaced:
		return l.replayBid(p)
	case *auction.BidPlaced:
		return l.replayBid(*p)
	case auction.AuctionEnded:
		return l.replayEnded(p)
	case *auction.AuctionEnded:
		return l.replayEnded(*p)
	case auction.FundsWithdrawn:
		return l.replayWithdrawn(p)
	case *auction.FundsWithdrawn:
		return l.replayWithdrawn(*p)
	case auction.PayoutDeferred:
		return l.replayDeferred(p)
	case *auction.PayoutDeferred:
		return l.replayDeferred(*p)
	case auction.WithdrawalReverted:
		return l.replayReverted(p)
	case *auction.WithdrawalReverted:
		return l.replayReverted(*p)
	default:
		return fmt.Errorf("unsupported payload %T", ev.Payload)
	}
}

func (l *Ledger) replayCreated(ev auction.Event, p auction.AuctionCreated) error {
	if p.AuctionID != uint64(len(l.auctions)) {
		return fmt.Errorf("auction id %d is not dense, expected %d", p.AuctionID, len(l.auctions))
	}
	l.auctions = append(l.auctions, &auction.Auction{
		ID:            p.AuctionID,
		Title:         p.Title,
		Description:   p.Description,
		StartingPrice: p.StartingPrice,
		Seller:        p.Seller,
		EndTime:       p.EndTime,
		CreatedAt:     ev.At,
	})
	l.flows = append(l.flows, flows{})
	return nil
}

func (l *Ledger) replayBid(p auction.BidPlaced) error {
	a, err := l.find(p.AuctionID)
	if err != nil {
		return err
	}
	if a.Ended {
		return fmt.Errorf("bid on ended auction %d", p.AuctionID)
	}
	outbid, owed := a.ApplyBid(p.Bidder, p.Deposit)
	if !outbid.IsZero() {
		l.credit(p.AuctionID, outbid, owed)
	}
	if !a.CurrentBid.Equal(p.Amount) {
		return fmt.Errorf("current bid %s does not match recorded %s", a.CurrentBid, p.Amount)
	}
	l.flows[p.AuctionID].deposited = l.flows[p.AuctionID].deposited.Add(p.Deposit)
	return nil
}

func (l *Ledger) replayEnded(p auction.AuctionEnded) error {
	a, err := l.find(p.AuctionID)
	if err != nil {
		return err
	}
	if a.Ended {
		return fmt.Errorf("auction %d ended twice", p.AuctionID)
	}
	winner, payout := a.MarkEnded()
	if winner != p.Winner || !payout.Equal(p.Amount) {
		return fmt.Errorf("end of auction %d does not match recorded winner/amount", p.AuctionID)
	}
	l.flows[p.AuctionID].paidOut = l.flows[p.AuctionID].paidOut.Add(payout)
	return nil
}

func (l *Ledger) replayDeferred(p auction.PayoutDeferred) error {
	a, err := l.find(p.AuctionID)
	if err != nil {
		return err
	}
	if !a.Ended || p.Seller != a.Seller {
		return fmt.Errorf("deferred payout for auction %d does not follow its end", p.AuctionID)
	}
	left, err := l.flows[p.AuctionID].paidOut.Sub(p.Amount)
	if err != nil {
		return fmt.Errorf("deferred payout exceeds paid out: %w", err)
	}
	l.flows[p.AuctionID].paidOut = left
	l.credit(p.AuctionID, p.Seller, p.Amount)
	return nil
}

func (l *Ledger) replayWithdrawn(p auction.FundsWithdrawn) error {
	if _, err := l.find(p.AuctionID); err != nil {
		return err
	}
	k := refundKey{auctionID: p.AuctionID, who: p.Bidder}
	left, err := l.refunds[k].Sub(p.Amount)
	if err != nil {
		return fmt.Errorf("withdrawal exceeds pending return: %w", err)
	}
	if left.IsZero() {
		delete(l.refunds, k)
	} else {
		l.refunds[k] = left
	}
	l.flows[p.AuctionID].withdrawn = l.flows[p.AuctionID].withdrawn.Add(p.Amount)
	return nil
}

func (l *Ledger) replayReverted(p auction.WithdrawalReverted) error {
	if _, err := l.find(p.AuctionID); err != nil {
		return err
	}
	left, err := l.flows[p.AuctionID].withdrawn.Sub(p.Amount)
	if err != nil {
		return fmt.Errorf("reverted withdrawal exceeds withdrawn: %w", err)
	}
	l.flows[p.AuctionID].withdrawn = left
	l.credit(p.AuctionID, p.Bidder, p.Amount)
	return nil
}
