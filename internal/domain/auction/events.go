package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// EventType names a ledger transition
type EventType string

const (
	EventAuctionCreated EventType = "auction.created"
	EventBidPlaced      EventType = "auction.bid_placed"
	EventAuctionEnded   EventType = "auction.ended"
	EventFundsWithdrawn EventType = "auction.funds_withdrawn"

	EventPayoutDeferred     EventType = "auction.payout_deferred"
	EventWithdrawalReverted EventType = "auction.withdrawal_reverted"
)

// Payload is implemented by every event body
type Payload interface {
	EventType() EventType
	AuctionRef() uint64
}

// Event is the envelope published after each successful write. Seq is
// assigned under the ledger lock, so it is strictly increasing and gap-free.
type Event struct {
	Seq     uint64    `json:"seq"`
	ID      uuid.UUID `json:"id"`
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Payload Payload   `json:"payload"`
}

// NewEvent wraps payload in an envelope
func NewEvent(seq uint64, at time.Time, payload Payload) Event {
	return Event{
		Seq:     seq,
		ID:      uuid.New(),
		Type:    payload.EventType(),
		At:      at,
		Payload: payload,
	}
}

// AuctionID is the auction the event belongs to
func (e Event) AuctionID() uint64 {
	return e.Payload.AuctionRef()
}

// AuctionCreated carries everything needed to rebuild the auction
type AuctionCreated struct {
	AuctionID     uint64          `json:"auction_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Seller        values.Identity `json:"seller"`
	StartingPrice values.Amount   `json:"starting_price"`
	EndTime       time.Time       `json:"end_time"`
}

func (AuctionCreated) EventType() EventType  { return EventAuctionCreated }
func (e AuctionCreated) AuctionRef() uint64 { return e.AuctionID }

// BidPlaced reports the resulting current bid. Deposit is the value the
// bidder sent with this call, which differs from Amount on a top-up.
type BidPlaced struct {
	AuctionID uint64          `json:"auction_id"`
	Bidder    values.Identity `json:"bidder"`
	Amount    values.Amount   `json:"amount"`
	Deposit   values.Amount   `json:"deposit"`
}

func (BidPlaced) EventType() EventType  { return EventBidPlaced }
func (e BidPlaced) AuctionRef() uint64 { return e.AuctionID }

// AuctionEnded is recorded when the auction is closed, before the seller
// is paid. Winner is null and Amount zero when nobody bid.
type AuctionEnded struct {
	AuctionID uint64          `json:"auction_id"`
	Winner    values.Identity `json:"winner"`
	Amount    values.Amount   `json:"amount"`
}

func (AuctionEnded) EventType() EventType  { return EventAuctionEnded }
func (e AuctionEnded) AuctionRef() uint64 { return e.AuctionID }

// FundsWithdrawn is recorded when the refund entry is cleared, before the
// transfer is attempted.
type FundsWithdrawn struct {
	AuctionID uint64          `json:"auction_id"`
	Bidder    values.Identity `json:"bidder"`
	Amount    values.Amount   `json:"amount"`
}

func (FundsWithdrawn) EventType() EventType  { return EventFundsWithdrawn }
func (e FundsWithdrawn) AuctionRef() uint64 { return e.AuctionID }

// PayoutDeferred follows an AuctionEnded whose payout could not be
// delivered. The amount becomes the seller's pending return.
type PayoutDeferred struct {
	AuctionID uint64          `json:"auction_id"`
	Seller    values.Identity `json:"seller"`
	Amount    values.Amount   `json:"amount"`
}

func (PayoutDeferred) EventType() EventType  { return EventPayoutDeferred }
func (e PayoutDeferred) AuctionRef() uint64 { return e.AuctionID }

// WithdrawalReverted follows a FundsWithdrawn whose transfer failed and
// restores the refund entry.
type WithdrawalReverted struct {
	AuctionID uint64          `json:"auction_id"`
	Bidder    values.Identity `json:"bidder"`
	Amount    values.Amount   `json:"amount"`
}

func (WithdrawalReverted) EventType() EventType  { return EventWithdrawalReverted }
func (e WithdrawalReverted) AuctionRef() uint64 { return e.AuctionID }

// NewPayload returns an empty payload for t, for decoders
func NewPayload(t EventType) (Payload, error) {
	switch t {
	case EventAuctionCreated:
		return &AuctionCreated{}, nil
	case EventBidPlaced:
		return &BidPlaced{}, nil
	case EventAuctionEnded:
		return &AuctionEnded{}, nil
	case EventFundsWithdrawn:
		return &FundsWithdrawn{}, nil
	case EventPayoutDeferred:
		return &PayoutDeferred{}, nil
	case EventWithdrawalReverted:
		return &WithdrawalReverted{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}
