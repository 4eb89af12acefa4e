package ledger_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/errors"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/service/ledger"
	"github.com/davidleathers/auction-ledger/internal/testutil/fixtures"
	"github.com/davidleathers/auction-ledger/internal/testutil/mocks"
)

// assertSameState compares every observable read of two ledgers
func assertSameState(t *testing.T, want, got *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()

	require.Equal(t, want.TotalAuctions(ctx), got.TotalAuctions(ctx))
	assert.Equal(t, want.Seq(), got.Seq())
	assert.Equal(t, want.ActiveAuctions(ctx), got.ActiveAuctions(ctx))

	people := []values.Identity{fixtures.Seller, fixtures.Alice, fixtures.Bob, fixtures.Carol}
	for id := uint64(0); id < want.TotalAuctions(ctx); id++ {
		ws, err := want.GetAuction(ctx, id)
		require.NoError(t, err)
		gs, err := got.GetAuction(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, ws.Title, gs.Title)
		assert.Equal(t, ws.Description, gs.Description)
		assert.Equal(t, ws.Seller, gs.Seller)
		assert.Equal(t, ws.HighestBidder, gs.HighestBidder)
		assert.True(t, ws.CurrentBid.Equal(gs.CurrentBid))
		assert.True(t, ws.StartingPrice.Equal(gs.StartingPrice))
		assert.True(t, ws.EndTime.Equal(gs.EndTime))
		assert.Equal(t, ws.Ended, gs.Ended)
		assert.Equal(t, ws.Status, gs.Status)

		for _, who := range people {
			assert.True(t, want.PendingReturn(ctx, id, who).Equal(got.PendingReturn(ctx, id, who)),
				"pending return of %s on auction %d", who, id)
		}

		wa, err := want.Account(ctx, id)
		require.NoError(t, err)
		ga, err := got.Account(ctx, id)
		require.NoError(t, err)
		assert.True(t, wa.Deposited.Equal(ga.Deposited))
		assert.True(t, wa.Withdrawn.Equal(ga.Withdrawn))
		assert.True(t, wa.PaidOut.Equal(ga.PaidOut))
		assert.True(t, ga.Balanced())
	}
}

func TestRestoreReproducesState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := h.create(t, fixtures.NewAuctionBuilder())
	second := h.create(t, fixtures.NewAuctionBuilder().WithDuration(2*time.Hour))
	_, err := h.ledger.PlaceBid(ctx, first, fixtures.Alice, values.Ether("1"))
	require.NoError(t, err)
	_, err = h.ledger.PlaceBid(ctx, first, fixtures.Bob, values.Ether("1.5"))
	require.NoError(t, err)
	_, err = h.ledger.PlaceBid(ctx, first, fixtures.Bob, values.Ether("0.25"))
	require.NoError(t, err)
	_, err = h.ledger.PlaceBid(ctx, second, fixtures.Carol, values.Ether("4"))
	require.NoError(t, err)
	_, err = h.ledger.PlaceBid(ctx, second, fixtures.Alice, values.Ether("5"))
	require.NoError(t, err)
	_, err = h.ledger.Withdraw(ctx, first, fixtures.Alice)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, err = h.ledger.EndAuction(ctx, first, fixtures.Seller)
	require.NoError(t, err)

	// align clocks so derived status matches
	clock := fixtures.NewClock()
	clock.Advance(time.Hour)
	restored := ledger.New(clock, &mocks.RecordingPayer{})
	require.NoError(t, restored.Restore(ctx, h.events.Events()))
	assertSameState(t, h.ledger, restored)

	// a restored ledger keeps numbering where the journal left off
	id, err := restored.CreateAuction(ctx, fixtures.Seller, ledger.CreateAuctionInput{
		Title: "after", Description: "restore", StartingPrice: values.NewAmount(1), Duration: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
	assert.Equal(t, h.ledger.Seq()+1, restored.Seq())
}

func TestRestoreDeferredPayout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	payer := &mocks.MockPayer{}
	h.ledger = ledger.New(h.clock, payer, ledger.WithPublisher(h.events))

	id := h.create(t, fixtures.NewAuctionBuilder())
	_, err := h.ledger.PlaceBid(ctx, id, fixtures.Alice, values.Ether("3"))
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	payer.On("Pay", mock.Anything, fixtures.Seller, mock.Anything).Return(stderrors.New("offline")).Once()
	res, err := h.ledger.EndAuction(ctx, id, fixtures.Seller)
	require.NoError(t, err)
	require.True(t, res.Deferred)

	clock := fixtures.NewClock()
	clock.Advance(time.Hour)
	restored := ledger.New(clock, &mocks.RecordingPayer{})
	require.NoError(t, restored.Restore(ctx, h.events.Events()))
	assertSameState(t, h.ledger, restored)
	assert.True(t, restored.PendingReturn(ctx, id, fixtures.Seller).Equal(values.Ether("3")))
}

// A withdrawal is journaled before its transfer, so credits made while the
// transfer is in flight follow it.
func TestRestoreInterleavedWithdrawal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var l *ledger.Ledger
	inFlight := true
	payer := mocks.PayFunc(func(ctx context.Context, to values.Identity, amount values.Amount) error {
		if inFlight && to == fixtures.Alice {
			inFlight = false
			_, err := l.PlaceBid(ctx, 0, fixtures.Alice, values.Ether("3"))
			require.NoError(t, err)
			_, err = l.PlaceBid(ctx, 0, fixtures.Bob, values.Ether("4"))
			require.NoError(t, err)
		}
		return h.payer.Pay(ctx, to, amount)
	})
	l = ledger.New(h.clock, payer, ledger.WithPublisher(h.events))
	h.ledger = l

	id := h.create(t, fixtures.NewAuctionBuilder())
	_, err := l.PlaceBid(ctx, id, fixtures.Alice, values.Ether("1"))
	require.NoError(t, err)
	_, err = l.PlaceBid(ctx, id, fixtures.Bob, values.Ether("2"))
	require.NoError(t, err)

	got, err := l.Withdraw(ctx, id, fixtures.Alice)
	require.NoError(t, err)
	assert.True(t, got.Equal(values.Ether("1")))
	assert.True(t, l.PendingReturn(ctx, id, fixtures.Alice).Equal(values.Ether("3")))

	types := h.events.Types()
	assert.Equal(t, []auction.EventType{
		auction.EventFundsWithdrawn,
		auction.EventBidPlaced,
		auction.EventBidPlaced,
	}, types[len(types)-3:])

	restored := ledger.New(fixtures.NewClock(), &mocks.RecordingPayer{})
	require.NoError(t, restored.Restore(ctx, h.events.Events()))
	assertSameState(t, l, restored)
}

func TestRestoreRejectsBadJournals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.create(t, fixtures.NewAuctionBuilder())
	_, err := h.ledger.PlaceBid(ctx, id, fixtures.Alice, values.Ether("1"))
	require.NoError(t, err)
	events := h.events.Events()

	t.Run("gap in sequence", func(t *testing.T) {
		l := ledger.New(fixtures.NewClock(), &mocks.RecordingPayer{})
		assert.Error(t, l.Restore(ctx, events[1:]))
	})

	t.Run("tampered amount", func(t *testing.T) {
		bad := append([]auction.Event(nil), events...)
		bid := bad[1].Payload.(auction.BidPlaced)
		bid.Amount = values.Ether("9")
		bad[1].Payload = bid

		l := ledger.New(fixtures.NewClock(), &mocks.RecordingPayer{})
		assert.Error(t, l.Restore(ctx, bad))
	})

	t.Run("ledger not empty", func(t *testing.T) {
		assert.Error(t, h.ledger.Restore(ctx, events))
	})

	t.Run("pointer payloads from decoders", func(t *testing.T) {
		ptrs := make([]auction.Event, len(events))
		for i, ev := range events {
			ptrs[i] = ev
			switch p := ev.Payload.(type) {
			case auction.AuctionCreated:
				ptrs[i].Payload = &p
			case auction.BidPlaced:
				ptrs[i].Payload = &p
			}
		}
		l := ledger.New(fixtures.NewClock(), &mocks.RecordingPayer{})
		require.NoError(t, l.Restore(ctx, ptrs))
		assert.Equal(t, uint64(1), l.TotalAuctions(ctx))
	})
}

// failingJournal keeps appended events and fails the first append of
// failOn
type failingJournal struct {
	failOn auction.EventType
	failed bool
	events []auction.Event
}

func (j *failingJournal) Append(_ context.Context, ev auction.Event) error {
	if ev.Type == j.failOn && !j.failed {
		j.failed = true
		return stderrors.New("disk full")
	}
	j.events = append(j.events, ev)
	return nil
}

func TestRestoreAfterFailedEndAppend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	journal := &failingJournal{failOn: auction.EventAuctionEnded}
	h.ledger = ledger.New(h.clock, h.payer, ledger.WithJournal(journal), ledger.WithPublisher(h.events))

	id := h.create(t, fixtures.NewAuctionBuilder())
	_, err := h.ledger.PlaceBid(ctx, id, fixtures.Alice, values.Ether("1"))
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	_, err = h.ledger.EndAuction(ctx, id, fixtures.Seller)
	require.Error(t, err)
	assert.Empty(t, h.payer.Transfers(), "nothing paid when the end is not journaled")
	snap, err := h.ledger.GetAuction(ctx, id)
	require.NoError(t, err)
	assert.False(t, snap.Ended)

	// the call can be retried once the journal recovers
	_, err = h.ledger.EndAuction(ctx, id, fixtures.Seller)
	require.NoError(t, err)
	assert.True(t, h.payer.Received(fixtures.Seller).Equal(values.Ether("1")))

	clock := fixtures.NewClock()
	clock.Advance(time.Hour)
	restored := ledger.New(clock, &mocks.RecordingPayer{})
	require.NoError(t, restored.Restore(ctx, journal.events))
	assertSameState(t, h.ledger, restored)

	_, err = restored.EndAuction(ctx, id, fixtures.Seller)
	assert.ErrorIs(t, err, errors.ErrAlreadyEnded, "a restored ledger does not pay the seller again")
}

func TestRestoreAfterFailedWithdrawAppend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	journal := &failingJournal{failOn: auction.EventFundsWithdrawn}
	h.ledger = ledger.New(h.clock, h.payer, ledger.WithJournal(journal), ledger.WithPublisher(h.events))

	id := h.create(t, fixtures.NewAuctionBuilder())
	_, err := h.ledger.PlaceBid(ctx, id, fixtures.Alice, values.Ether("1"))
	require.NoError(t, err)
	_, err = h.ledger.PlaceBid(ctx, id, fixtures.Bob, values.Ether("2"))
	require.NoError(t, err)

	_, err = h.ledger.Withdraw(ctx, id, fixtures.Alice)
	require.Error(t, err)
	assert.Empty(t, h.payer.Transfers())
	assert.True(t, h.ledger.PendingReturn(ctx, id, fixtures.Alice).Equal(values.Ether("1")))

	got, err := h.ledger.Withdraw(ctx, id, fixtures.Alice)
	require.NoError(t, err)
	assert.True(t, got.Equal(values.Ether("1")))

	restored := ledger.New(fixtures.NewClock(), &mocks.RecordingPayer{})
	require.NoError(t, restored.Restore(ctx, journal.events))
	assertSameState(t, h.ledger, restored)

	_, err = restored.Withdraw(ctx, id, fixtures.Alice)
	assert.ErrorIs(t, err, errors.ErrNothingToWithdraw, "a restored ledger does not refund twice")
	assert.True(t, h.payer.Received(fixtures.Alice).Equal(values.Ether("1")))
}

func TestRestoreRevertedWithdrawal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	payer := &mocks.MockPayer{}
	journal := &failingJournal{}
	h.ledger = ledger.New(h.clock, payer, ledger.WithJournal(journal), ledger.WithPublisher(h.events))

	id := h.create(t, fixtures.NewAuctionBuilder())
	_, err := h.ledger.PlaceBid(ctx, id, fixtures.Alice, values.Ether("1"))
	require.NoError(t, err)
	_, err = h.ledger.PlaceBid(ctx, id, fixtures.Bob, values.Ether("2"))
	require.NoError(t, err)

	payer.On("Pay", mock.Anything, fixtures.Alice, mock.Anything).Return(stderrors.New("rejected")).Once()
	_, err = h.ledger.Withdraw(ctx, id, fixtures.Alice)
	assert.ErrorIs(t, err, errors.ErrTransferFailed)

	restored := ledger.New(fixtures.NewClock(), &mocks.RecordingPayer{})
	require.NoError(t, restored.Restore(ctx, journal.events))
	assertSameState(t, h.ledger, restored)
	assert.True(t, restored.PendingReturn(ctx, id, fixtures.Alice).Equal(values.Ether("1")))
	payer.AssertExpectations(t)
}

// When a failed payout cannot be deferred in the journal, the proceeds stay
// recorded as paid out so a restart cannot pay them again.
func TestEndAuctionPayoutNotDeferrable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	payer := &mocks.MockPayer{}
	journal := &failingJournal{failOn: auction.EventPayoutDeferred}
	h.ledger = ledger.New(h.clock, payer, ledger.WithJournal(journal), ledger.WithPublisher(h.events))

	id := h.create(t, fixtures.NewAuctionBuilder())
	_, err := h.ledger.PlaceBid(ctx, id, fixtures.Alice, values.Ether("2"))
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	payer.On("Pay", mock.Anything, fixtures.Seller, mock.Anything).Return(stderrors.New("offline")).Once()
	_, err = h.ledger.EndAuction(ctx, id, fixtures.Seller)
	assert.ErrorIs(t, err, errors.ErrTransferFailed)
	assert.True(t, h.ledger.PendingReturn(ctx, id, fixtures.Seller).IsZero())
	requireBalanced(t, h.ledger, id)

	clock := fixtures.NewClock()
	clock.Advance(time.Hour)
	restored := ledger.New(clock, &mocks.RecordingPayer{})
	require.NoError(t, restored.Restore(ctx, journal.events))
	assertSameState(t, h.ledger, restored)
	payer.AssertExpectations(t)
}
