package events

import (
	"context"
	"errors"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/service/ledger"
)

// Multi delivers each event to every publisher and joins their errors
type Multi []ledger.Publisher

func (m Multi) Publish(ctx context.Context, ev auction.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
