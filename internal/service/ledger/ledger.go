package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/errors"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// Operation names used for metrics and logs
const (
	OpCreate   = "create_auction"
	OpBid      = "place_bid"
	OpEnd      = "end_auction"
	OpWithdraw = "withdraw"
)

// Ledger owns every auction and every refund entry. A single mutex guards
// all state; validation completes before any mutation, and outbound
// transfers happen with the mutex released after guards are flipped.
type Ledger struct {
	clock     auction.Clock
	payer     Payer
	publisher Publisher
	journal   Journal
	metrics   MetricsCollector
	logger    *zap.Logger

	mu       sync.Mutex
	auctions []*auction.Auction
	flows    []flows
	refunds  map[refundKey]values.Amount
	seq      uint64
}

// Option configures a Ledger
type Option func(*Ledger)

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithMetrics(m MetricsCollector) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates an empty ledger. clock and payer are required.
func New(clock auction.Clock, payer Payer, opts ...Option) *Ledger {
	l := &Ledger{
		clock:     clock,
		payer:     payer,
		publisher: noopPublisher{},
		journal:   noopJournal{},
		metrics:   noopMetrics{},
		logger:    zap.NewNop(),
		refunds:   make(map[refundKey]values.Amount),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateAuction registers a new auction owned by seller and returns its id.
// Ids are dense and start at zero.
func (l *Ledger) CreateAuction(ctx context.Context, seller values.Identity, in CreateAuctionInput) (id uint64, err error) {
	defer l.observe(OpCreate, time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	id = uint64(len(l.auctions))
	a, err := auction.New(id, seller, auction.Params{
		Title:         in.Title,
		Description:   in.Description,
		StartingPrice: in.StartingPrice,
		Duration:      in.Duration,
	}, now)
	if err != nil {
		return 0, err
	}

	ev, err := l.record(ctx, now, auction.AuctionCreated{
		AuctionID:     id,
		Title:         a.Title,
		Description:   a.Description,
		Seller:        seller,
		StartingPrice: a.StartingPrice,
		EndTime:       a.EndTime,
	})
	if err != nil {
		return 0, err
	}

	l.auctions = append(l.auctions, a)
	l.flows = append(l.flows, flows{})
	l.metrics.SetAuctions(len(l.auctions))
	l.announce(ctx, ev)

	l.logger.Info("auction created",
		zap.Uint64("auction_id", id),
		zap.String("seller", seller.String()),
		zap.String("starting_price", a.StartingPrice.String()),
		zap.Time("end_time", a.EndTime),
	)
	return id, nil
}

// GetAuction returns a snapshot with status and time remaining derived at
// the current instant.
func (l *Ledger) GetAuction(ctx context.Context, id uint64) (auction.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.find(id)
	if err != nil {
		return auction.Snapshot{}, err
	}
	return a.Snapshot(l.clock.Now()), nil
}

// ListAuctions pages through auctions in ascending id order
func (l *Ledger) ListAuctions(ctx context.Context, offset, limit int) []auction.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(l.auctions) || limit <= 0 {
		return []auction.Snapshot{}
	}
	end := offset + limit
	if end > len(l.auctions) {
		end = len(l.auctions)
	}

	now := l.clock.Now()
	out := make([]auction.Snapshot, 0, end-offset)
	for _, a := range l.auctions[offset:end] {
		out = append(out, a.Snapshot(now))
	}
	return out
}

// ActiveAuctions returns the ids of open auctions, ascending. Status is
// recomputed on every call.
func (l *Ledger) ActiveAuctions(ctx context.Context) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	ids := make([]uint64, 0)
	for _, a := range l.auctions {
		if a.Status(now) == auction.StatusOpen {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// TotalAuctions counts every auction ever created
func (l *Ledger) TotalAuctions(ctx context.Context) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.auctions))
}

// ValidateBid reports the error PlaceBid would return for the same
// arguments at this instant, without changing anything.
func (l *Ledger) ValidateBid(ctx context.Context, auctionID uint64, bidder values.Identity, amount values.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.find(auctionID)
	if err != nil {
		return err
	}
	return a.CheckBid(l.clock.Now(), bidder, amount)
}

// PlaceBid deposits amount from bidder and returns the resulting current
// bid. The standing highest bidder tops up cumulatively; anyone else must
// beat the current bid (or meet the starting price for the first bid), and
// the displaced bidder's amount becomes refundable.
func (l *Ledger) PlaceBid(ctx context.Context, auctionID uint64, bidder values.Identity, amount values.Amount) (current values.Amount, err error) {
	defer l.observe(OpBid, time.Now(), &err)

	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.find(auctionID)
	if err != nil {
		return values.Zero, err
	}
	now := l.clock.Now()
	if err := a.CheckBid(now, bidder, amount); err != nil {
		return values.Zero, err
	}

	resulting := amount
	if bidder == a.HighestBidder {
		resulting = a.CurrentBid.Add(amount)
	}

	ev, err := l.record(ctx, now, auction.BidPlaced{
		AuctionID: auctionID,
		Bidder:    bidder,
		Amount:    resulting,
		Deposit:   amount,
	})
	if err != nil {
		return values.Zero, err
	}

	outbid, owed := a.ApplyBid(bidder, amount)
	if !outbid.IsZero() {
		l.credit(auctionID, outbid, owed)
	}
	l.flows[auctionID].deposited = l.flows[auctionID].deposited.Add(amount)
	l.metrics.RecordBid(amount)
	l.announce(ctx, ev)

	l.logger.Debug("bid placed",
		zap.Uint64("auction_id", auctionID),
		zap.String("bidder", bidder.String()),
		zap.String("deposit", amount.String()),
		zap.String("current_bid", a.CurrentBid.String()),
	)
	return a.CurrentBid, nil
}

// EndAuction finalizes an expired auction and pays the highest bid to the
// seller. The end is journaled and Ended set before the payout is
// attempted. If the payout fails the proceeds stay in custody as the
// seller's pending return.
func (l *Ledger) EndAuction(ctx context.Context, auctionID uint64, caller values.Identity) (res EndResult, err error) {
	defer l.observe(OpEnd, time.Now(), &err)

	l.mu.Lock()
	a, err := l.find(auctionID)
	if err != nil {
		l.mu.Unlock()
		return EndResult{}, err
	}
	now := l.clock.Now()
	if err := a.CheckEnd(now, caller); err != nil {
		l.mu.Unlock()
		return EndResult{}, err
	}
	ev, err := l.record(ctx, now, auction.AuctionEnded{
		AuctionID: auctionID,
		Winner:    a.HighestBidder,
		Amount:    a.CurrentBid,
	})
	if err != nil {
		l.mu.Unlock()
		return EndResult{}, err
	}
	winner, payout := a.MarkEnded()
	seller := a.Seller
	l.flows[auctionID].paidOut = l.flows[auctionID].paidOut.Add(payout)
	l.announce(ctx, ev)
	l.mu.Unlock()

	res = EndResult{Winner: winner, Amount: payout}
	if payout.IsPositive() {
		if payErr := l.payer.Pay(ctx, seller, payout); payErr != nil {
			if err := l.deferPayout(ctx, auctionID, seller, payout, payErr); err != nil {
				return EndResult{}, err
			}
			res.Deferred = true
		} else {
			l.metrics.RecordPayout("seller", payout)
		}
	}

	l.logger.Info("auction ended",
		zap.Uint64("auction_id", auctionID),
		zap.String("winner", winner.String()),
		zap.String("amount", payout.String()),
		zap.Bool("deferred", res.Deferred),
	)
	return res, nil
}

// deferPayout moves an undeliverable payout into the seller's pending
// return. If that cannot be journaled the proceeds stay recorded as paid
// and the error is returned.
func (l *Ledger) deferPayout(ctx context.Context, auctionID uint64, seller values.Identity, payout values.Amount, payErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, err := l.record(ctx, l.clock.Now(), auction.PayoutDeferred{
		AuctionID: auctionID,
		Seller:    seller,
		Amount:    payout,
	})
	if err != nil {
		l.logger.Error("seller payout failed and could not be deferred",
			zap.Uint64("auction_id", auctionID),
			zap.String("seller", seller.String()),
			zap.String("amount", payout.String()),
			zap.NamedError("pay_error", payErr),
			zap.Error(err),
		)
		return errors.ErrTransferFailed.WithCause(payErr)
	}
	l.flows[auctionID].paidOut = mustSub(l.flows[auctionID].paidOut, payout)
	l.credit(auctionID, seller, payout)
	l.announce(ctx, ev)

	l.logger.Warn("seller payout deferred",
		zap.Uint64("auction_id", auctionID),
		zap.String("seller", seller.String()),
		zap.String("amount", payout.String()),
		zap.Error(payErr),
	)
	return nil
}

// Withdraw pays out everything caller is owed on the auction. The
// withdrawal is journaled and the entry zeroed before the transfer; a
// failed transfer is followed by a reversal that restores it.
func (l *Ledger) Withdraw(ctx context.Context, auctionID uint64, caller values.Identity) (amount values.Amount, err error) {
	defer l.observe(OpWithdraw, time.Now(), &err)

	l.mu.Lock()
	owed := l.refunds[refundKey{auctionID: auctionID, who: caller}]
	if owed.IsZero() {
		l.mu.Unlock()
		return values.Zero, errors.ErrNothingToWithdraw
	}
	ev, err := l.record(ctx, l.clock.Now(), auction.FundsWithdrawn{
		AuctionID: auctionID,
		Bidder:    caller,
		Amount:    owed,
	})
	if err != nil {
		l.mu.Unlock()
		return values.Zero, err
	}
	l.take(auctionID, caller)
	l.flows[auctionID].withdrawn = l.flows[auctionID].withdrawn.Add(owed)
	l.announce(ctx, ev)
	l.mu.Unlock()

	payErr := l.payer.Pay(ctx, caller, owed)
	if payErr == nil {
		l.metrics.RecordPayout("refund", owed)
		return owed, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rev, err := l.record(ctx, l.clock.Now(), auction.WithdrawalReverted{
		AuctionID: auctionID,
		Bidder:    caller,
		Amount:    owed,
	})
	if err != nil {
		l.logger.Error("withdrawal failed and could not be reverted",
			zap.Uint64("auction_id", auctionID),
			zap.String("bidder", caller.String()),
			zap.String("amount", owed.String()),
			zap.NamedError("pay_error", payErr),
			zap.Error(err),
		)
		return values.Zero, errors.ErrTransferFailed.WithCause(payErr)
	}
	l.flows[auctionID].withdrawn = mustSub(l.flows[auctionID].withdrawn, owed)
	l.credit(auctionID, caller, owed)
	l.announce(ctx, rev)
	return values.Zero, errors.ErrTransferFailed.WithCause(payErr)
}

// PendingReturn is what bidder could withdraw from the auction right now
func (l *Ledger) PendingReturn(ctx context.Context, auctionID uint64, bidder values.Identity) values.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refunds[refundKey{auctionID: auctionID, who: bidder}]
}

// Account returns the custody balance sheet of one auction
func (l *Ledger) Account(ctx context.Context, auctionID uint64) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.find(auctionID)
	if err != nil {
		return Account{}, err
	}
	f := l.flows[auctionID]
	held := values.Zero
	if !a.Ended {
		held = a.CurrentBid
	}
	return Account{
		AuctionID: auctionID,
		Deposited: f.deposited,
		Withdrawn: f.withdrawn,
		PaidOut:   f.paidOut,
		Held:      held,
		Refunds:   l.refundTotal(auctionID),
	}, nil
}

// Seq is the sequence number of the last committed event
func (l *Ledger) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (l *Ledger) find(id uint64) (*auction.Auction, error) {
	if id >= uint64(len(l.auctions)) {
		return nil, errors.ErrAuctionNotFound
	}
	return l.auctions[id], nil
}

// record journals the next event. Callers hold the lock and mutate state
// only after record succeeds.
func (l *Ledger) record(ctx context.Context, now time.Time, payload auction.Payload) (auction.Event, error) {
	ev := auction.NewEvent(l.seq+1, now, payload)
	if err := l.journal.Append(ctx, ev); err != nil {
		l.logger.Error("journal append failed",
			zap.Uint64("seq", ev.Seq),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
		return auction.Event{}, errors.NewInternalError("failed to record ledger event").WithCause(err)
	}
	l.seq = ev.Seq
	return ev, nil
}

func (l *Ledger) announce(ctx context.Context, ev auction.Event) {
	if err := l.publisher.Publish(ctx, ev); err != nil {
		l.logger.Warn("event publish failed",
			zap.Uint64("seq", ev.Seq),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

func (l *Ledger) observe(op string, started time.Time, err *error) {
	code := "OK"
	if *err != nil {
		code = errors.CodeOf(*err)
	}
	l.metrics.RecordOperation(op, code, time.Since(started))
}

func mustSub(a, b values.Amount) values.Amount {
	out, err := a.Sub(b)
	if err != nil {
		panic(err)
	}
	return out
}
