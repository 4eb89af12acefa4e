package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Metrics is what the router needs from the metrics layer
type Metrics interface {
	HTTPRecorder
	Handler() http.Handler
}

// RouterDeps are the collaborators of the HTTP API. Funds, Metrics,
// WebSocket, RateLimiter and Health are optional.
type RouterDeps struct {
	Ledger      LedgerService
	Funds       Funds
	Auth        *AuthMiddleware
	Metrics     Metrics
	WebSocket   http.Handler
	RateLimiter *RateLimiter
	Health      *HealthHandler
	CORSOrigins []string
	MaxPageSize int
	Logger      *slog.Logger
}

// NewRouter builds the API handler on a method-aware ServeMux
func NewRouter(base *BaseHandler, deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = base.logger
	}
	h := NewHandlers(base, deps.Ledger, deps.Funds, deps.MaxPageSize)
	mux := http.NewServeMux()

	route := func(pattern string, handler http.Handler, authed bool) {
		if authed {
			handler = deps.Auth.Require(handler)
		}
		if deps.Metrics != nil {
			handler = MetricsMiddleware(deps.Metrics, routeName(pattern))(handler)
		}
		mux.Handle(pattern, handler)
	}
	api := func(pattern string, fn HandlerFunc, authed bool) {
		route(pattern, base.Wrap(routeName(pattern), fn), authed)
	}

	api("POST /api/v1/auctions", h.createAuction, true)
	api("GET /api/v1/auctions", h.listAuctions, false)
	api("GET /api/v1/auctions/active", h.activeAuctions, false)
	api("GET /api/v1/auctions/{id}", h.getAuction, false)
	api("GET /api/v1/auctions/{id}/account", h.getAccount, false)
	api("POST /api/v1/auctions/{id}/bids", h.placeBid, true)
	api("POST /api/v1/auctions/{id}/end", h.endAuction, true)
	api("POST /api/v1/auctions/{id}/withdraw", h.withdraw, true)
	api("GET /api/v1/auctions/{id}/pending/{address}", h.pendingReturn, false)
	if deps.Funds != nil {
		api("GET /api/v1/wallets/{address}", h.balance, false)
	}

	if deps.WebSocket != nil {
		route("GET /api/v1/ws", deps.WebSocket, false)
	}
	if deps.Health != nil {
		route("GET /health", deps.Health, false)
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.Handle("/", base.Wrap("not_found", func(_ context.Context, r *http.Request) (int, interface{}, error) {
		return 0, nil, &routeError{path: r.URL.Path}
	}))

	middlewares := []Middleware{
		SecurityHeadersMiddleware(),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		RecoveryMiddleware(base),
		CORSMiddleware(deps.CORSOrigins),
	}
	if deps.RateLimiter != nil {
		middlewares = append(middlewares, deps.RateLimiter.Middleware(base))
	}
	return Chain(mux, middlewares...)
}

// routeName drops the method from a pattern for span and metric labels
func routeName(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
