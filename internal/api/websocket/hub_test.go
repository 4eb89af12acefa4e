package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/auction-ledger/internal/api/websocket"
	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/events"
	"github.com/davidleathers/auction-ledger/internal/testutil"
	"github.com/davidleathers/auction-ledger/internal/testutil/fixtures"
)

type gauge struct{ n atomic.Int64 }

func (g *gauge) SetWebSocketClients(n int) { g.n.Store(int64(n)) }

func bidEvent(seq, auctionID uint64) auction.Event {
	return auction.NewEvent(seq, fixtures.Epoch, auction.BidPlaced{
		AuctionID: auctionID,
		Bidder:    fixtures.Alice,
		Amount:    values.Ether("1"),
		Deposit:   values.Ether("1"),
	})
}

func startHub(t *testing.T, cfg websocket.Config) (*events.Bus, *websocket.Hub, *gauge, *httptest.Server) {
	t.Helper()
	bus := events.NewBus(testutil.TestLogger(t))
	g := &gauge{}
	hub := websocket.NewHub(bus, cfg, testutil.TestLogger(t), g)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	// Run subscribes asynchronously
	testutil.AssertEventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	return bus, hub, g, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *gorilla.Conn) auction.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := events.Decode(data)
	require.NoError(t, err)
	return ev
}

func TestHubStreamsEvents(t *testing.T) {
	bus, hub, g, srv := startHub(t, websocket.DefaultConfig())
	conn := dial(t, srv, "")
	testutil.AssertEventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), g.n.Load())

	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, bus.Publish(ctx, bidEvent(seq, 1)))
	}
	for want := uint64(1); want <= 3; want++ {
		ev := readEvent(t, conn)
		assert.Equal(t, want, ev.Seq)
		assert.Equal(t, auction.EventBidPlaced, ev.Type)
	}
}

func TestHubFiltersByAuction(t *testing.T) {
	bus, hub, _, srv := startHub(t, websocket.DefaultConfig())
	conn := dial(t, srv, "?auction=2")
	testutil.AssertEventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, bidEvent(1, 1)))
	require.NoError(t, bus.Publish(ctx, bidEvent(2, 2)))

	ev := readEvent(t, conn)
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Equal(t, uint64(2), ev.AuctionID())
}

func TestHubRejectsBadFilter(t *testing.T) {
	_, _, _, srv := startHub(t, websocket.DefaultConfig())

	resp, err := http.Get(srv.URL + "?auction=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	_, hub, g, srv := startHub(t, websocket.DefaultConfig())
	conn := dial(t, srv, "")
	testutil.AssertEventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	testutil.AssertEventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), g.n.Load())
}

func TestHubChecksOrigin(t *testing.T) {
	cfg := websocket.DefaultConfig()
	cfg.AllowedOrigins = []string{"https://auctions.example"}
	_, _, _, srv := startHub(t, cfg)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := gorilla.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://auctions.example")
	conn, _, err := gorilla.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
