package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	domainErrors "github.com/davidleathers/auction-ledger/internal/domain/errors"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/service/ledger"
)

// LedgerService is the ledger surface the API needs
type LedgerService interface {
	CreateAuction(ctx context.Context, seller values.Identity, in ledger.CreateAuctionInput) (uint64, error)
	GetAuction(ctx context.Context, id uint64) (auction.Snapshot, error)
	ListAuctions(ctx context.Context, offset, limit int) []auction.Snapshot
	ActiveAuctions(ctx context.Context) []uint64
	TotalAuctions(ctx context.Context) uint64
	ValidateBid(ctx context.Context, auctionID uint64, bidder values.Identity, amount values.Amount) error
	PlaceBid(ctx context.Context, auctionID uint64, bidder values.Identity, amount values.Amount) (values.Amount, error)
	EndAuction(ctx context.Context, auctionID uint64, caller values.Identity) (ledger.EndResult, error)
	Withdraw(ctx context.Context, auctionID uint64, caller values.Identity) (values.Amount, error)
	PendingReturn(ctx context.Context, auctionID uint64, bidder values.Identity) values.Amount
	Account(ctx context.Context, auctionID uint64) (ledger.Account, error)
}

// Funds is where bid deposits come from. Nil means deposits are taken on
// trust, as when an upstream system already escrowed them.
type Funds interface {
	Debit(who values.Identity, amount values.Amount) error
	Fund(who values.Identity, amount values.Amount)
	Balance(who values.Identity) values.Amount
}

const defaultPageSize = 20

// Handlers serves the auction API
type Handlers struct {
	*BaseHandler
	ledger      LedgerService
	funds       Funds
	maxPageSize int
}

func NewHandlers(base *BaseHandler, l LedgerService, funds Funds, maxPageSize int) *Handlers {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Handlers{BaseHandler: base, ledger: l, funds: funds, maxPageSize: maxPageSize}
}

func (h *Handlers) createAuction(ctx context.Context, r *http.Request) (int, interface{}, error) {
	seller, err := requireCaller(ctx)
	if err != nil {
		return 0, nil, err
	}
	var req CreateAuctionRequest
	if err := h.decode(r, &req); err != nil {
		return 0, nil, err
	}
	price, err := values.ParseAmount(req.StartingPrice)
	if err != nil {
		return 0, nil, &ValidationError{Message: "Invalid starting price", Details: err.Error()}
	}

	id, err := h.ledger.CreateAuction(ctx, seller, ledger.CreateAuctionInput{
		Title:         req.Title,
		Description:   req.Description,
		StartingPrice: price,
		Duration:      time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		return 0, nil, err
	}
	snap, err := h.ledger.GetAuction(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newAuctionResponse(snap), nil
}

func (h *Handlers) listAuctions(ctx context.Context, r *http.Request) (int, interface{}, error) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return 0, nil, err
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		return 0, nil, err
	}
	limit = min(max(limit, 1), h.maxPageSize)

	snaps := h.ledger.ListAuctions(ctx, offset, limit)
	resp := AuctionListResponse{
		Auctions: make([]AuctionResponse, 0, len(snaps)),
		Total:    h.ledger.TotalAuctions(ctx),
		Offset:   offset,
		Limit:    limit,
	}
	for _, s := range snaps {
		resp.Auctions = append(resp.Auctions, newAuctionResponse(s))
	}
	return http.StatusOK, resp, nil
}

func (h *Handlers) activeAuctions(ctx context.Context, _ *http.Request) (int, interface{}, error) {
	ids := h.ledger.ActiveAuctions(ctx)
	if ids == nil {
		ids = []uint64{}
	}
	return http.StatusOK, ActiveAuctionsResponse{AuctionIDs: ids}, nil
}

func (h *Handlers) getAuction(ctx context.Context, r *http.Request) (int, interface{}, error) {
	id, err := auctionID(r)
	if err != nil {
		return 0, nil, err
	}
	snap, err := h.ledger.GetAuction(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newAuctionResponse(snap), nil
}

func (h *Handlers) getAccount(ctx context.Context, r *http.Request) (int, interface{}, error) {
	id, err := auctionID(r)
	if err != nil {
		return 0, nil, err
	}
	acct, err := h.ledger.Account(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, acct, nil
}

// placeBid checks the bid against the auction, then draws the deposit from
// the caller's funds. The deposit is returned if the ledger still rejects
// the bid, as when the auction expires between the check and the bid.
func (h *Handlers) placeBid(ctx context.Context, r *http.Request) (int, interface{}, error) {
	bidder, err := requireCaller(ctx)
	if err != nil {
		return 0, nil, err
	}
	id, err := auctionID(r)
	if err != nil {
		return 0, nil, err
	}
	var req PlaceBidRequest
	if err := h.decode(r, &req); err != nil {
		return 0, nil, err
	}
	deposit, err := values.ParseAmount(req.Amount)
	if err != nil {
		return 0, nil, &ValidationError{Message: "Invalid amount", Details: err.Error()}
	}

	if h.funds != nil && deposit.IsPositive() {
		if err := h.ledger.ValidateBid(ctx, id, bidder, deposit); err != nil {
			return 0, nil, err
		}
		if err := h.funds.Debit(bidder, deposit); err != nil {
			return 0, nil, err
		}
	}
	current, err := h.ledger.PlaceBid(ctx, id, bidder, deposit)
	if err != nil {
		if h.funds != nil && deposit.IsPositive() {
			h.funds.Fund(bidder, deposit)
		}
		return 0, nil, err
	}

	return http.StatusOK, BidResponse{
		AuctionID:  id,
		Bidder:     bidder,
		Deposit:    deposit,
		CurrentBid: current,
	}, nil
}

func (h *Handlers) endAuction(ctx context.Context, r *http.Request) (int, interface{}, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return 0, nil, err
	}
	id, err := auctionID(r)
	if err != nil {
		return 0, nil, err
	}
	res, err := h.ledger.EndAuction(ctx, id, caller)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newEndAuctionResponse(id, res), nil
}

func (h *Handlers) withdraw(ctx context.Context, r *http.Request) (int, interface{}, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return 0, nil, err
	}
	id, err := auctionID(r)
	if err != nil {
		return 0, nil, err
	}
	amount, err := h.ledger.Withdraw(ctx, id, caller)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, WithdrawResponse{AuctionID: id, Bidder: caller, Amount: amount}, nil
}

func (h *Handlers) pendingReturn(ctx context.Context, r *http.Request) (int, interface{}, error) {
	id, err := auctionID(r)
	if err != nil {
		return 0, nil, err
	}
	addr, err := values.ParseIdentity(r.PathValue("address"))
	if err != nil {
		return 0, nil, &ValidationError{Message: "Invalid address", Details: err.Error()}
	}
	return http.StatusOK, PendingReturnResponse{
		AuctionID: id,
		Address:   addr,
		Amount:    h.ledger.PendingReturn(ctx, id, addr),
	}, nil
}

func (h *Handlers) balance(_ context.Context, r *http.Request) (int, interface{}, error) {
	if h.funds == nil {
		return 0, nil, &routeError{path: r.URL.Path}
	}
	addr, err := values.ParseIdentity(r.PathValue("address"))
	if err != nil {
		return 0, nil, &ValidationError{Message: "Invalid address", Details: err.Error()}
	}
	return http.StatusOK, BalanceResponse{Address: addr, Balance: h.funds.Balance(addr)}, nil
}

func requireCaller(ctx context.Context) (values.Identity, error) {
	caller, ok := CallerFrom(ctx)
	if !ok || caller.IsZero() {
		return values.NullIdentity, domainErrors.ErrInvalidInput.WithMessage("Caller identity is required")
	}
	return caller, nil
}

func auctionID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, &ValidationError{Message: "Auction id must be a non-negative integer"}
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &ValidationError{Message: name + " must be a non-negative integer"}
	}
	return v, nil
}
