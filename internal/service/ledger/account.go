package ledger

import (
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

type refundKey struct {
	auctionID uint64
	who       values.Identity
}

// flows tracks value moving in and out of one auction
type flows struct {
	deposited values.Amount
	withdrawn values.Amount
	paidOut   values.Amount
}

// Account is a per-auction view of custody. Refunds is summed from the
// refund book, not from flows, so Balanced cross-checks the two.
type Account struct {
	AuctionID uint64        `json:"auction_id"`
	Deposited values.Amount `json:"deposited"`
	Withdrawn values.Amount `json:"withdrawn"`
	PaidOut   values.Amount `json:"paid_out"`
	Held      values.Amount `json:"held"`
	Refunds   values.Amount `json:"refunds"`
}

// Balanced reports whether deposited - paid out - withdrawn equals
// refunds + held.
func (a Account) Balanced() bool {
	out := a.PaidOut.Add(a.Withdrawn)
	if a.Deposited.LessThan(out) {
		return false
	}
	remaining, _ := a.Deposited.Sub(out)
	return remaining.Equal(a.Refunds.Add(a.Held))
}

func (l *Ledger) credit(auctionID uint64, who values.Identity, amount values.Amount) {
	k := refundKey{auctionID: auctionID, who: who}
	l.refunds[k] = l.refunds[k].Add(amount)
}

// take zeroes the refund entry and returns what it held
func (l *Ledger) take(auctionID uint64, who values.Identity) values.Amount {
	k := refundKey{auctionID: auctionID, who: who}
	owed := l.refunds[k]
	delete(l.refunds, k)
	return owed
}

func (l *Ledger) refundTotal(auctionID uint64) values.Amount {
	total := values.Zero
	for k, v := range l.refunds {
		if k.auctionID == auctionID {
			total = total.Add(v)
		}
	}
	return total
}
