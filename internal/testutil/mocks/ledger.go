package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// MockPayer is a testify mock of the ledger's outbound transfer port
type MockPayer struct {
	mock.Mock
}

func (m *MockPayer) Pay(ctx context.Context, to values.Identity, amount values.Amount) error {
	args := m.Called(ctx, to, amount)
	return args.Error(0)
}

// PayFunc adapts a function to the payer port
type PayFunc func(ctx context.Context, to values.Identity, amount values.Amount) error

func (f PayFunc) Pay(ctx context.Context, to values.Identity, amount values.Amount) error {
	return f(ctx, to, amount)
}

// Transfer is one recorded payment
type Transfer struct {
	To     values.Identity
	Amount values.Amount
}

// RecordingPayer records every successful payment
type RecordingPayer struct {
	mu        sync.Mutex
	transfers []Transfer
}

func (p *RecordingPayer) Pay(_ context.Context, to values.Identity, amount values.Amount) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, Transfer{To: to, Amount: amount})
	return nil
}

func (p *RecordingPayer) Transfers() []Transfer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Transfer(nil), p.transfers...)
}

// Received sums everything paid to who
func (p *RecordingPayer) Received(who values.Identity) values.Amount {
	total := values.Zero
	for _, tr := range p.Transfers() {
		if tr.To == who {
			total = total.Add(tr.Amount)
		}
	}
	return total
}

// RecordingPublisher keeps every published event in order
type RecordingPublisher struct {
	mu     sync.Mutex
	events []auction.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, ev auction.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

func (p *RecordingPublisher) Events() []auction.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]auction.Event(nil), p.events...)
}

// Types lists the event types in publish order
func (p *RecordingPublisher) Types() []auction.EventType {
	var out []auction.EventType
	for _, ev := range p.Events() {
		out = append(out, ev.Type)
	}
	return out
}

// Last returns the most recent event
func (p *RecordingPublisher) Last() (auction.Event, bool) {
	evs := p.Events()
	if len(evs) == 0 {
		return auction.Event{}, false
	}
	return evs[len(evs)-1], true
}

// MockJournal is a testify mock of the journal port
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Append(ctx context.Context, ev auction.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockMetricsCollector records nothing but satisfies the metrics port
type MockMetricsCollector struct {
	mock.Mock
}

func (m *MockMetricsCollector) RecordOperation(op string, code string, duration time.Duration) {
	m.Called(op, code, duration)
}

func (m *MockMetricsCollector) RecordBid(deposit values.Amount) {
	m.Called(deposit)
}

func (m *MockMetricsCollector) RecordPayout(kind string, amount values.Amount) {
	m.Called(kind, amount)
}

func (m *MockMetricsCollector) SetAuctions(total int) {
	m.Called(total)
}

// AmountEq matches an Amount argument by value. Amounts built along
// different paths may differ in internal scale, so mocks should not compare
// them with reflect.DeepEqual.
func AmountEq(want values.Amount) interface{} {
	return mock.MatchedBy(func(got values.Amount) bool {
		return got.Equal(want)
	})
}
