package fixtures

import (
	"time"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// Well-known test accounts
var (
	Seller = values.MustParseIdentity("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	Alice  = values.MustParseIdentity("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
	Bob    = values.MustParseIdentity("0x90f79bf6eb2c4f870365e785982e1f101e93b906")
	Carol  = values.MustParseIdentity("0x15d34aaf54267db7d7c367839aaf71a00a2c6a65")
)

// Epoch is the starting instant of every manual clock built here
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewClock returns a manual clock set to Epoch
func NewClock() *auction.ManualClock {
	return auction.NewManualClock(Epoch)
}

// AuctionBuilder builds creation parameters for tests
type AuctionBuilder struct {
	title         string
	description   string
	startingPrice values.Amount
	duration      time.Duration
}

// NewAuctionBuilder starts from a one-hour, 1 ether auction
func NewAuctionBuilder() *AuctionBuilder {
	return &AuctionBuilder{
		title:         "Test Item",
		description:   "Test Description",
		startingPrice: values.Ether("1.0"),
		duration:      time.Hour,
	}
}

func (b *AuctionBuilder) WithTitle(title string) *AuctionBuilder {
	b.title = title
	return b
}

func (b *AuctionBuilder) WithDescription(description string) *AuctionBuilder {
	b.description = description
	return b
}

func (b *AuctionBuilder) WithStartingPrice(price values.Amount) *AuctionBuilder {
	b.startingPrice = price
	return b
}

func (b *AuctionBuilder) WithDuration(d time.Duration) *AuctionBuilder {
	b.duration = d
	return b
}

// Params returns domain creation parameters
func (b *AuctionBuilder) Params() auction.Params {
	return auction.Params{
		Title:         b.title,
		Description:   b.description,
		StartingPrice: b.startingPrice,
		Duration:      b.duration,
	}
}
