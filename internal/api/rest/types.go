package rest

import (
	"time"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/service/ledger"
)

// Amounts travel as decimal strings of wei so JavaScript clients keep full
// precision.

// CreateAuctionRequest is the body of POST /api/v1/auctions
type CreateAuctionRequest struct {
	Title           string `json:"title" validate:"max=256"`
	Description     string `json:"description" validate:"max=4096"`
	StartingPrice   string `json:"starting_price" validate:"required,amount"`
	DurationSeconds int64  `json:"duration_seconds" validate:"min=0,max=3153600000"`
}

// PlaceBidRequest is the body of POST /api/v1/auctions/{id}/bids. Amount is
// the value sent with the bid.
type PlaceBidRequest struct {
	Amount string `json:"amount" validate:"required,amount"`
}

// AuctionResponse is the public view of an auction
type AuctionResponse struct {
	ID            uint64          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Seller        values.Identity `json:"seller"`
	StartingPrice values.Amount   `json:"starting_price"`
	CurrentBid    values.Amount   `json:"current_bid"`
	HighestBidder values.Identity `json:"highest_bidder"`
	EndTime       time.Time       `json:"end_time"`
	Ended         bool            `json:"ended"`
	Status        auction.Status  `json:"status"`
	TimeRemaining int64           `json:"time_remaining"`
	CreatedAt     time.Time       `json:"created_at"`
}

func newAuctionResponse(s auction.Snapshot) AuctionResponse {
	return AuctionResponse{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		Seller:        s.Seller,
		StartingPrice: s.StartingPrice,
		CurrentBid:    s.CurrentBid,
		HighestBidder: s.HighestBidder,
		EndTime:       s.EndTime,
		Ended:         s.Ended,
		Status:        s.Status,
		TimeRemaining: s.TimeRemainingSeconds(),
		CreatedAt:     s.CreatedAt,
	}
}

type AuctionListResponse struct {
	Auctions []AuctionResponse `json:"auctions"`
	Total    uint64            `json:"total"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
}

type ActiveAuctionsResponse struct {
	AuctionIDs []uint64 `json:"auction_ids"`
}

type BidResponse struct {
	AuctionID  uint64          `json:"auction_id"`
	Bidder     values.Identity `json:"bidder"`
	Deposit    values.Amount   `json:"deposit"`
	CurrentBid values.Amount   `json:"current_bid"`
}

type EndAuctionResponse struct {
	AuctionID uint64          `json:"auction_id"`
	Winner    values.Identity `json:"winner"`
	Amount    values.Amount   `json:"amount"`
	Deferred  bool            `json:"deferred"`
}

func newEndAuctionResponse(id uint64, res ledger.EndResult) EndAuctionResponse {
	return EndAuctionResponse{AuctionID: id, Winner: res.Winner, Amount: res.Amount, Deferred: res.Deferred}
}

type WithdrawResponse struct {
	AuctionID uint64          `json:"auction_id"`
	Bidder    values.Identity `json:"bidder"`
	Amount    values.Amount   `json:"amount"`
}

type PendingReturnResponse struct {
	AuctionID uint64          `json:"auction_id"`
	Address   values.Identity `json:"address"`
	Amount    values.Amount   `json:"amount"`
}

type BalanceResponse struct {
	Address values.Identity `json:"address"`
	Balance values.Amount   `json:"balance"`
}
