package ledger

import (
	"context"
	"time"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// Payer moves value out of the ledger's custody. It is always invoked with
// the ledger lock released, so an implementation may call back into the
// ledger.
type Payer interface {
	Pay(ctx context.Context, to values.Identity, amount values.Amount) error
}

// PayerFunc adapts a function to Payer
type PayerFunc func(ctx context.Context, to values.Identity, amount values.Amount) error

func (f PayerFunc) Pay(ctx context.Context, to values.Identity, amount values.Amount) error {
	return f(ctx, to, amount)
}

// Publisher receives every committed event in Seq order. Publish is called
// while the ledger is locked and must not block.
type Publisher interface {
	Publish(ctx context.Context, event auction.Event) error
}

// Journal durably records committed events so the ledger can be rebuilt
type Journal interface {
	Append(ctx context.Context, event auction.Event) error
}

// MetricsCollector defines the interface for metrics
type MetricsCollector interface {
	// RecordOperation records the outcome of a ledger operation
	RecordOperation(op string, code string, duration time.Duration)
	// RecordBid records an accepted bid's deposit
	RecordBid(deposit values.Amount)
	// RecordPayout records value leaving the ledger
	RecordPayout(kind string, amount values.Amount)
	// SetAuctions reports the number of auctions ever created
	SetAuctions(total int)
}

// CreateAuctionInput are the parameters of a new auction
type CreateAuctionInput struct {
	Title         string
	Description   string
	StartingPrice values.Amount
	Duration      time.Duration
}

// EndResult is the outcome of a successful EndAuction
type EndResult struct {
	Winner values.Identity
	Amount values.Amount
	// Deferred is set when the seller payout failed and was credited to the
	// seller's pending return for the auction.
	Deferred bool
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, auction.Event) error { return nil }

type noopJournal struct{}

func (noopJournal) Append(context.Context, auction.Event) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordOperation(string, string, time.Duration) {}
func (noopMetrics) RecordBid(values.Amount)                       {}
func (noopMetrics) RecordPayout(string, values.Amount)            {}
func (noopMetrics) SetAuctions(int)                               {}
