package websocket

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/events"
)

// Config controls connection behaviour
type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	// HubBuffer is the hub's own bus subscription buffer
	HubBuffer int
	// AllowedOrigins restricts browser origins. Empty or "*" allows all.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 4096,
		HubBuffer:      4096,
	}
}

// ClientGauge is told the number of connected clients
type ClientGauge interface {
	SetWebSocketClients(n int)
}

// Hub streams ledger events to WebSocket clients. A client that cannot keep
// up with its send buffer is disconnected rather than skipped, so every
// client sees an unbroken Seq run for as long as it stays connected.
type Hub struct {
	logger   *zap.Logger
	config   Config
	bus      *events.Bus
	gauge    ClientGauge
	upgrader websocket.Upgrader

	clientsLock sync.RWMutex
	clients     map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(bus *events.Bus, config Config, logger *zap.Logger, gauge ClientGauge) *Hub {
	def := DefaultConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = def.SendBuffer
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.HubBuffer <= 0 {
		config.HubBuffer = def.HubBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		logger:     logger,
		config:     config,
		bus:        bus,
		gauge:      gauge,
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run consumes the bus until ctx is cancelled. If the hub itself falls
// behind, every client is disconnected and the hub resubscribes.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	sub := h.bus.Subscribe(h.config.HubBuffer, nil)
	defer func() { sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case ev, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					h.shutdown()
					return
				}
				h.logger.Warn("event stream interrupted, disconnecting clients",
					zap.Bool("lagged", sub.Lagged()))
				h.disconnectAll()
				sub = h.bus.Subscribe(h.config.HubBuffer, nil)
				continue
			}
			h.broadcast(ev)
		}
	}
}

// ServeHTTP upgrades the request. The optional auction query parameter
// limits the stream to one auction.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter events.Filter
	if raw := r.URL.Query().Get("auction"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "auction must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter = events.ForAuction(id)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn, filter)
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()
	return len(h.clients)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Hub) registerClient(client *Client) {
	h.clientsLock.Lock()
	h.clients[client.ID] = client
	n := len(h.clients)
	h.clientsLock.Unlock()

	h.logger.Info("WebSocket client registered",
		zap.String("client_id", client.ID.String()),
		zap.String("remote_addr", client.conn.RemoteAddr().String()))
	h.reportClients(n)
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsLock.Lock()
	_, exists := h.clients[client.ID]
	if exists {
		delete(h.clients, client.ID)
		close(client.send)
	}
	n := len(h.clients)
	h.clientsLock.Unlock()

	if exists {
		h.logger.Info("WebSocket client unregistered", zap.String("client_id", client.ID.String()))
		h.reportClients(n)
	}
}

func (h *Hub) broadcast(ev auction.Event) {
	data, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Uint64("seq", ev.Seq), zap.Error(err))
		return
	}

	var slow []*Client
	h.clientsLock.RLock()
	for _, client := range h.clients {
		if client.filter != nil && !client.filter(ev) {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.clientsLock.RUnlock()

	for _, client := range slow {
		h.logger.Warn("disconnecting slow WebSocket client",
			zap.String("client_id", client.ID.String()),
			zap.Uint64("seq", ev.Seq))
		h.unregisterClient(client)
	}
}

func (h *Hub) disconnectAll() {
	h.clientsLock.Lock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
	h.clientsLock.Unlock()
	h.reportClients(0)
}

func (h *Hub) shutdown() {
	h.disconnectAll()
	h.logger.Info("WebSocket hub stopped")
}

func (h *Hub) reportClients(n int) {
	if h.gauge != nil {
		h.gauge.SetWebSocketClients(n)
	}
}
