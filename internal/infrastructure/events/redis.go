package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/config"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/telemetry"
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrQueueFull is returned when the outbound buffer cannot take an event
var ErrQueueFull = errors.New("redis publish queue is full")

// RedisPublisher forwards events to a Redis pub/sub channel. Publish only
// enqueues; a single worker sends in Seq order.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan []byte
	closed bool
	done   chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRedisClient builds a client from either a redis:// URL or a host:port
// address and checks it with a ping
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisPublisher starts the send worker. The publisher owns client and
// closes it on Close.
func NewRedisPublisher(client *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := cfg.Buffer
	if buffer < 1 {
		buffer = 1024
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "auction-ledger:events"
	}

	p := &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With(zap.String("channel", channel)),
		timeout: 3 * time.Second,
		queue:   make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Channel returns the pub/sub channel name
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish implements ledger.Publisher
func (p *RedisPublisher) Publish(_ context.Context, ev auction.Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- data:
		return nil
	default:
		p.dropped.Add(1)
		return fmt.Errorf("%w: seq %d", ErrQueueFull, ev.Seq)
	}
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for data := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		ctx, span := telemetry.StartMessagingSpan(ctx, "redis", "publish", p.channel)
		err := p.client.Publish(ctx, p.channel, data).Err()
		telemetry.EndSpan(span, err)
		cancel()
		if err != nil {
			p.failed.Add(1)
			p.logger.Error("redis publish failed", zap.Error(err))
			continue
		}
		p.sent.Add(1)
	}
}

// Stats returns events sent, dropped on a full queue, and failed in Redis
func (p *RedisPublisher) Stats() (sent, dropped, failed uint64) {
	return p.sent.Load(), p.dropped.Load(), p.failed.Load()
}

// Close drains queued events, waiting until ctx is done, then closes the client
func (p *RedisPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	var err error
	select {
	case <-p.done:
	case <-ctx.Done():
		err = fmt.Errorf("redis publisher drain: %w", ctx.Err())
	}

	sent, dropped, failed := p.Stats()
	p.logger.Info("redis publisher closed",
		zap.Uint64("sent", sent),
		zap.Uint64("dropped", dropped),
		zap.Uint64("failed", failed))
	return errors.Join(err, p.client.Close())
}
