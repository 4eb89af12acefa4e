package auction

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/davidleathers/auction-ledger/internal/domain/errors"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// Status is derived from (now, EndTime, Ended) on every read and never stored.
type Status int

const (
	StatusOpen Status = iota
	StatusExpired
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusExpired:
		return "expired"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = StatusOpen
	case "expired":
		*s = StatusExpired
	case "ended":
		*s = StatusEnded
	default:
		return fmt.Errorf("unknown auction status %q", text)
	}
	return nil
}

// StatusAt computes the lifecycle status at instant now.
func StatusAt(now, endTime time.Time, ended bool) Status {
	switch {
	case ended:
		return StatusEnded
	case now.Before(endTime):
		return StatusOpen
	default:
		return StatusExpired
	}
}

// Auction is a single time-boxed ascending-price auction.
//
// CurrentBid is zero exactly when HighestBidder is the null identity. Once
// nonzero it only grows. EndTime never changes and Ended only flips false→true.
type Auction struct {
	ID            uint64          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	StartingPrice values.Amount   `json:"starting_price"`
	CurrentBid    values.Amount   `json:"current_bid"`
	Seller        values.Identity `json:"seller"`
	HighestBidder values.Identity `json:"highest_bidder"`
	EndTime       time.Time       `json:"end_time"`
	Ended         bool            `json:"ended"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MaxDuration bounds auction length. End times must stay representable as
// int64 Unix nanoseconds, which is how the journal stores them.
const MaxDuration = 100 * 365 * 24 * time.Hour

// latestEndTime is the last instant with an int64 Unix nanosecond form
var latestEndTime = time.Unix(0, math.MaxInt64)

// Params are the caller-supplied creation parameters
type Params struct {
	Title         string
	Description   string
	StartingPrice values.Amount
	Duration      time.Duration
}

// Validate checks creation parameters. Durations are whole seconds.
func (p Params) Validate(seller values.Identity) error {
	switch {
	case seller.IsZero():
		return errors.ErrInvalidInput.WithMessage("Seller cannot be the null address")
	case strings.TrimSpace(p.Title) == "":
		return errors.ErrInvalidInput.WithMessage("Title cannot be empty")
	case strings.TrimSpace(p.Description) == "":
		return errors.ErrInvalidInput.WithMessage("Description cannot be empty")
	case !p.StartingPrice.IsPositive():
		return errors.ErrInvalidInput.WithMessage("Starting price must be greater than 0")
	case p.Duration < time.Second:
		return errors.ErrInvalidInput.WithMessage("Duration must be greater than 0")
	case p.Duration > MaxDuration:
		return errors.ErrInvalidInput.WithMessage("Duration must not exceed 100 years")
	}
	return nil
}

// New builds an auction with EndTime = now + duration (truncated to seconds).
func New(id uint64, seller values.Identity, p Params, now time.Time) (*Auction, error) {
	if err := p.Validate(seller); err != nil {
		return nil, err
	}
	endTime := now.Add(p.Duration.Truncate(time.Second))
	if endTime.After(latestEndTime) {
		return nil, errors.ErrInvalidInput.WithMessage("Auction would end too far in the future")
	}
	return &Auction{
		ID:            id,
		Title:         p.Title,
		Description:   p.Description,
		StartingPrice: p.StartingPrice,
		Seller:        seller,
		EndTime:       endTime,
		CreatedAt:     now,
	}, nil
}

func (a *Auction) Status(now time.Time) Status {
	return StatusAt(now, a.EndTime, a.Ended)
}

// HasBids reports whether any bid was accepted
func (a *Auction) HasBids() bool {
	return !a.HighestBidder.IsZero()
}

// CheckBid validates a bid without mutating anything. The first failing
// precondition wins.
func (a *Auction) CheckBid(now time.Time, bidder values.Identity, amount values.Amount) error {
	if a.Status(now) != StatusOpen {
		return errors.ErrAuctionClosed
	}
	if bidder == a.Seller {
		return errors.ErrSellerCannotBid
	}
	if bidder.IsZero() {
		return errors.ErrInvalidInput.WithMessage("Bidder cannot be the null address")
	}

	// The standing bidder tops up by any positive increment.
	if bidder == a.HighestBidder {
		if !amount.IsPositive() {
			return errors.ErrBidTooLow.WithMessage("Bid amount must be greater than 0")
		}
		return nil
	}
	if a.CurrentBid.IsZero() {
		if amount.LessThan(a.StartingPrice) {
			return errors.ErrBidTooLow.WithMessage("Bid must be at least the starting price")
		}
		return nil
	}
	if !amount.GreaterThan(a.CurrentBid) {
		return errors.ErrBidTooLow
	}
	return nil
}

// ApplyBid records an already-validated bid. When a different bidder takes
// the lead, the displaced bidder and the amount they are now owed are
// returned; otherwise outbid is the null identity.
func (a *Auction) ApplyBid(bidder values.Identity, amount values.Amount) (outbid values.Identity, owed values.Amount) {
	if bidder == a.HighestBidder {
		a.CurrentBid = a.CurrentBid.Add(amount)
		return values.NullIdentity, values.Zero
	}

	outbid, owed = a.HighestBidder, a.CurrentBid
	a.HighestBidder = bidder
	a.CurrentBid = amount
	return outbid, owed
}

// CheckEnd validates an end request by caller
func (a *Auction) CheckEnd(now time.Time, caller values.Identity) error {
	if caller != a.Seller {
		return errors.ErrUnauthorized
	}
	if now.Before(a.EndTime) {
		return errors.ErrNotYetExpired
	}
	if a.Ended {
		return errors.ErrAlreadyEnded
	}
	return nil
}

// MarkEnded flips the terminal flag and returns the winner and the payout.
// The winner is the null identity and the payout zero when nobody bid.
func (a *Auction) MarkEnded() (winner values.Identity, payout values.Amount) {
	a.Ended = true
	return a.HighestBidder, a.CurrentBid
}

// Snapshot is a read-only copy with derived fields filled in
type Snapshot struct {
	Auction
	Status        Status        `json:"status"`
	TimeRemaining time.Duration `json:"-"`
}

// TimeRemainingSeconds is TimeRemaining in whole seconds
func (s Snapshot) TimeRemainingSeconds() int64 {
	return int64(s.TimeRemaining / time.Second)
}

func (a *Auction) Snapshot(now time.Time) Snapshot {
	remaining := a.EndTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		Auction:       *a,
		Status:        a.Status(now),
		TimeRemaining: remaining,
	}
}
