// Package wallet holds balances for identities outside the ledger. The dev
// server pays out into it and draws bid deposits from it.
package wallet

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/domain/errors"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// Book is an in-memory balance sheet. It implements ledger.Payer.
type Book struct {
	logger *zap.Logger

	mu       sync.Mutex
	balances map[values.Identity]values.Amount
	// autoFund tops up an unknown identity on first use
	autoFund values.Amount
}

type Option func(*Book)

// WithAutoFunding gives every identity seen for the first time amount
func WithAutoFunding(amount values.Amount) Option {
	return func(b *Book) { b.autoFund = amount }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Book) { b.logger = logger }
}

func NewBook(opts ...Option) *Book {
	b := &Book{
		logger:   zap.NewNop(),
		balances: make(map[values.Identity]values.Amount),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fund credits who with amount
func (b *Book) Fund(who values.Identity, amount values.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[who] = b.balanceLocked(who).Add(amount)
}

func (b *Book) Balance(who values.Identity) values.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(who)
}

// Pay implements ledger.Payer by crediting the recipient
func (b *Book) Pay(_ context.Context, to values.Identity, amount values.Amount) error {
	if to.IsZero() {
		return errors.NewExternalError("wallet", "cannot pay the null address")
	}
	b.Fund(to, amount)
	b.logger.Debug("wallet credited",
		zap.String("to", to.String()),
		zap.String("amount", amount.String()))
	return nil
}

// Debit takes amount from who, failing when the balance is short
func (b *Book) Debit(who values.Identity, amount values.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest, err := b.balanceLocked(who).Sub(amount)
	if err != nil {
		return errors.ErrInsufficientFunds.WithDetails(map[string]interface{}{
			"address":  who.String(),
			"required": amount.String(),
		})
	}
	b.balances[who] = rest
	return nil
}

func (b *Book) balanceLocked(who values.Identity) values.Amount {
	bal, ok := b.balances[who]
	if !ok && b.autoFund.IsPositive() {
		bal = b.autoFund
		b.balances[who] = bal
	}
	return bal
}
