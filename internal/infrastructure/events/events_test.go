package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/config"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/events"
	"github.com/davidleathers/auction-ledger/internal/testutil"
	"github.com/davidleathers/auction-ledger/internal/testutil/fixtures"
	"github.com/davidleathers/auction-ledger/internal/testutil/mocks"
)

func bid(seq, auctionID uint64, amount string) auction.Event {
	return auction.NewEvent(seq, fixtures.Epoch, auction.BidPlaced{
		AuctionID: auctionID,
		Bidder:    fixtures.Alice,
		Amount:    values.Ether(amount),
		Deposit:   values.Ether(amount),
	})
}

func TestCodecRoundTrip(t *testing.T) {
	ev := auction.NewEvent(7, fixtures.Epoch, auction.AuctionEnded{
		AuctionID: 3, Winner: fixtures.Bob, Amount: values.Ether("2.5"),
	})

	data, err := events.Encode(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"auction.ended"`)
	assert.Contains(t, string(data), `"amount":"2500000000000000000"`)
	assert.Contains(t, string(data), `"winner":"0x90f79bf6eb2c4f870365e785982e1f101e93b906"`)

	got, err := events.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ev.Seq, got.Seq)
	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, ev.At.Equal(got.At))

	p, ok := got.Payload.(*auction.AuctionEnded)
	require.True(t, ok)
	assert.Equal(t, fixtures.Bob, p.Winner)
	assert.True(t, p.Amount.Equal(values.Ether("2.5")))
}

func TestCodecFollowUpEvents(t *testing.T) {
	for _, ev := range []auction.Event{
		auction.NewEvent(8, fixtures.Epoch, auction.PayoutDeferred{AuctionID: 3, Seller: fixtures.Seller, Amount: values.Ether("2.5")}),
		auction.NewEvent(9, fixtures.Epoch, auction.WithdrawalReverted{AuctionID: 3, Bidder: fixtures.Alice, Amount: values.Ether("1")}),
	} {
		t.Run(string(ev.Type), func(t *testing.T) {
			data, err := events.Encode(ev)
			require.NoError(t, err)
			got, err := events.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, ev.Type, got.Type)
			assert.Equal(t, uint64(3), got.AuctionID())
		})
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := events.Decode([]byte(`{"type":"auction.exploded","seq":1,"payload":{}}`))
	assert.Error(t, err)
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := events.NewBus(testutil.TestLogger(t))
	all := bus.Subscribe(8, nil)
	one := bus.Subscribe(8, events.ForAuction(1))
	defer all.Close()
	defer one.Close()

	ctx := context.Background()
	for seq := uint64(1); seq <= 4; seq++ {
		require.NoError(t, bus.Publish(ctx, bid(seq, seq%2, "1")))
	}

	for want := uint64(1); want <= 4; want++ {
		ev := <-all.C()
		assert.Equal(t, want, ev.Seq)
	}
	assert.Equal(t, uint64(1), (<-one.C()).Seq)
	assert.Equal(t, uint64(3), (<-one.C()).Seq)
	assert.Len(t, one.C(), 0)
}

func TestBusDropsLaggingSubscriber(t *testing.T) {
	bus := events.NewBus(testutil.TestLogger(t))
	slow := bus.Subscribe(1, nil)
	fast := bus.Subscribe(4, nil)
	defer fast.Close()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, bid(1, 0, "1")))
	require.NoError(t, bus.Publish(ctx, bid(2, 0, "2")))

	assert.True(t, slow.Lagged())
	ev, ok := <-slow.C()
	require.True(t, ok, "buffered event is still delivered")
	assert.Equal(t, uint64(1), ev.Seq)
	_, ok = <-slow.C()
	assert.False(t, ok, "channel closed after the buffered events")

	assert.False(t, fast.Lagged())
	assert.Equal(t, 1, bus.Subscribers())
	published, dropped := bus.Stats()
	assert.Equal(t, uint64(2), published)
	assert.Equal(t, uint64(1), dropped)
}

func TestBusClose(t *testing.T) {
	bus := events.NewBus(nil)
	sub := bus.Subscribe(1, nil)
	sub.Close()
	sub.Close()
	_, ok := <-sub.C()
	assert.False(t, ok)

	other := bus.Subscribe(1, nil)
	bus.Close()
	_, ok = <-other.C()
	assert.False(t, ok)

	late := bus.Subscribe(1, nil)
	_, ok = <-late.C()
	assert.False(t, ok)
	assert.NoError(t, bus.Publish(context.Background(), bid(1, 0, "1")))
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, auction.Event) error {
	return errors.New("unavailable")
}

func TestMultiPublishesToAll(t *testing.T) {
	a := &mocks.RecordingPublisher{}
	b := &mocks.RecordingPublisher{}
	multi := events.Multi{a, failingPublisher{}, b}

	err := multi.Publish(context.Background(), bid(1, 0, "1"))
	assert.ErrorContains(t, err, "unavailable")
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)

	assert.NoError(t, events.Multi{}.Publish(context.Background(), bid(2, 0, "1")))
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, config.RedisConfig) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, config.RedisConfig{URL: mr.Addr(), Channel: "test:events", Buffer: 16}
}

func TestRedisPublisher(t *testing.T) {
	_, cfg := setupRedis(t)
	ctx := testutil.TestContext(t)

	client, err := events.NewRedisClient(ctx, cfg)
	require.NoError(t, err)
	pub := events.NewRedisPublisher(client, cfg, testutil.TestLogger(t))

	reader := redis.NewClient(&redis.Options{Addr: cfg.URL})
	defer reader.Close()
	sub := reader.Subscribe(ctx, cfg.Channel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)
	msgs := sub.Channel()

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, pub.Publish(ctx, bid(seq, 0, "1")))
	}

	for want := uint64(1); want <= 3; want++ {
		select {
		case msg := <-msgs:
			ev, err := events.Decode([]byte(msg.Payload))
			require.NoError(t, err)
			assert.Equal(t, want, ev.Seq)
			assert.Equal(t, auction.EventBidPlaced, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for seq %d", want)
		}
	}

	require.NoError(t, pub.Close(ctx))
	assert.ErrorIs(t, pub.Publish(ctx, bid(4, 0, "1")), events.ErrPublisherClosed)
	sent, dropped, failed := pub.Stats()
	assert.Equal(t, uint64(3), sent)
	assert.Zero(t, dropped)
	assert.Zero(t, failed)
}

func TestRedisClientURLForms(t *testing.T) {
	mr, cfg := setupRedis(t)
	ctx := context.Background()

	cfg.URL = "redis://" + mr.Addr() + "/0"
	client, err := events.NewRedisClient(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	cfg.URL = "redis://%zz"
	_, err = events.NewRedisClient(ctx, cfg)
	assert.Error(t, err)
}

func TestRedisClientUnreachable(t *testing.T) {
	mr, cfg := setupRedis(t)
	mr.Close()
	_, err := events.NewRedisClient(context.Background(), cfg)
	assert.ErrorContains(t, err, "redis connection failed")
}
