package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
)

// Filter selects the events a subscription receives. Nil accepts all.
type Filter func(auction.Event) bool

// ForAuction accepts only events of one auction
func ForAuction(id uint64) Filter {
	return func(ev auction.Event) bool { return ev.AuctionID() == id }
}

// Subscription is one consumer of the bus. Its channel is closed when the
// subscription is cancelled or falls a full buffer behind, so a consumer
// never observes a gap in the sequence.
type Subscription struct {
	id     uint64
	ch     chan auction.Event
	filter Filter
	bus    *Bus
	once   sync.Once
	lagged atomic.Bool
}

// C delivers events in Seq order
func (s *Subscription) C() <-chan auction.Event {
	return s.ch
}

// Lagged reports whether the subscription was dropped for falling behind
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
}

func (s *Subscription) shutdown() {
	s.once.Do(func() { close(s.ch) })
}

// Bus fans events out to in-process subscribers. Publish never blocks.
type Bus struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers a consumer with the given buffer size
func (b *Bus) Subscribe(buffer int, filter Filter) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		ch:     make(chan auction.Event, buffer),
		filter: filter,
		bus:    b,
	}
	if b.closed {
		sub.shutdown()
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish implements ledger.Publisher
func (b *Bus) Publish(_ context.Context, ev auction.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published.Add(1)
	for id, sub := range b.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.lagged.Store(true)
			sub.shutdown()
			delete(b.subs, id)
			b.dropped.Add(1)
			b.logger.Warn("dropping lagging subscriber",
				zap.Uint64("subscription", id),
				zap.Uint64("seq", ev.Seq))
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats returns events published and subscribers dropped
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		sub.shutdown()
	}
}

// Close ends every subscription
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subs {
		sub.shutdown()
		delete(b.subs, id)
	}
}
