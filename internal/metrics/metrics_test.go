package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/metrics"
	"github.com/davidleathers/auction-ledger/internal/service/ledger"
	"github.com/davidleathers/auction-ledger/internal/testutil/fixtures"
)

func TestPrometheusLedgerMetrics(t *testing.T) {
	p := metrics.NewPrometheus()

	p.RecordOperation(ledger.OpBid, "OK", 2*time.Millisecond)
	p.RecordOperation(ledger.OpBid, "BID_TOO_LOW", time.Millisecond)
	p.RecordOperation(ledger.OpBid, "OK", time.Millisecond)
	p.RecordBid(values.Ether("1.5"))
	p.RecordPayout("seller", values.Ether("2"))
	p.SetAuctions(3)

	body := scrape(t, p)
	assert.Contains(t, body, `auction_ledger_operations_total{code="OK",operation="place_bid"} 2`)
	assert.Contains(t, body, `auction_ledger_operations_total{code="BID_TOO_LOW",operation="place_bid"} 1`)
	assert.Contains(t, body, `auction_ledger_bid_deposits_ether_total 1.5`)
	assert.Contains(t, body, `auction_ledger_payouts_ether_total{kind="seller"} 2`)
	assert.Contains(t, body, `auction_ledger_auctions 3`)
	assert.Contains(t, body, "go_goroutines")
}

func TestPrometheusHTTPMetrics(t *testing.T) {
	p := metrics.NewPrometheus()
	p.RecordHTTP(http.MethodGet, "GET /api/v1/auctions/{id}", http.StatusOK, 5*time.Millisecond)
	p.RecordHTTP(http.MethodGet, "GET /api/v1/auctions/{id}", http.StatusNotFound, time.Millisecond)
	p.SetWebSocketClients(4)

	assert.Equal(t, 2, testutil.CollectAndCount(p.Registry(), "auction_api_http_requests_total"))
	body := scrape(t, p)
	assert.Contains(t, body, `auction_ws_clients 4`)
}

func TestPrometheusInstancesAreIndependent(t *testing.T) {
	a := metrics.NewPrometheus()
	b := metrics.NewPrometheus()
	a.SetAuctions(1)
	b.SetAuctions(9)

	assert.Contains(t, scrape(t, a), "auction_ledger_auctions 1")
	assert.Contains(t, scrape(t, b), "auction_ledger_auctions 9")
}

func scrape(t *testing.T, p *metrics.Prometheus) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRegistryExportsThroughMeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	r, err := metrics.NewRegistry("auction-ledger-test")
	require.NoError(t, err)

	r.RecordOperation(ledger.OpCreate, "OK", time.Millisecond)
	r.RecordBid(values.Ether("1"))
	r.RecordPayout("refund", values.Ether("0.5"))
	r.SetAuctions(2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
			if m.Name == "auction.ledger.auctions" {
				gauge, ok := m.Data.(metricdata.Gauge[int64])
				require.True(t, ok)
				require.Len(t, gauge.DataPoints, 1)
				assert.Equal(t, int64(2), gauge.DataPoints[0].Value)
			}
		}
	}
	for _, want := range []string{
		"auction.ledger.operations_total",
		"auction.ledger.operation_duration",
		"auction.ledger.bid_deposits",
		"auction.ledger.payouts",
		"auction.ledger.auctions",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

// The collectors plug straight into a ledger.
func TestMultiCollectorWithLedger(t *testing.T) {
	p := metrics.NewPrometheus()
	r, err := metrics.NewRegistry("auction-ledger-test")
	require.NoError(t, err)

	clock := fixtures.NewClock()
	l := ledger.New(clock, ledger.PayerFunc(func(context.Context, values.Identity, values.Amount) error { return nil }),
		ledger.WithMetrics(metrics.Multi{p, r}))

	ctx := context.Background()
	id, err := l.CreateAuction(ctx, fixtures.Seller, ledger.CreateAuctionInput{
		Title: "Clock", Description: "Grandfather", StartingPrice: values.Ether("1"), Duration: time.Minute,
	})
	require.NoError(t, err)
	_, err = l.PlaceBid(ctx, id, fixtures.Alice, values.Ether("0.5"))
	require.Error(t, err)
	_, err = l.PlaceBid(ctx, id, fixtures.Alice, values.Ether("1"))
	require.NoError(t, err)

	body := scrape(t, p)
	assert.Contains(t, body, `auction_ledger_operations_total{code="BID_TOO_LOW",operation="place_bid"} 1`)
	assert.Contains(t, body, `auction_ledger_operations_total{code="OK",operation="create_auction"} 1`)
	assert.True(t, strings.Contains(body, "auction_ledger_bids_accepted_total 1"))
}
