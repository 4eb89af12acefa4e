package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/api/rest"
	"github.com/davidleathers/auction-ledger/internal/api/websocket"
	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/config"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/database"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/events"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/journal"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/telemetry"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/wallet"
	"github.com/davidleathers/auction-ledger/internal/metrics"
	"github.com/davidleathers/auction-ledger/internal/service/ledger"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultFile, "Path to configuration file")
		issueToken = flag.String("issue-token", "", "Print a bearer token for this address and exit")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			slog.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting auction ledger",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port)

	zl, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("zap logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	provider, err := telemetry.InitializeOpenTelemetry(ctx, telemetry.FromAppConfig(cfg))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, pool, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	j, history, err := journal.Open(ctx, store, zl.Named("journal"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	walletOpts := []wallet.Option{wallet.WithLogger(zl.Named("wallet"))}
	if cfg.Ledger.DevFunding != "" {
		amount, err := values.ParseAmount(cfg.Ledger.DevFunding)
		if err != nil {
			return fmt.Errorf("ledger.dev_funding: %w", err)
		}
		walletOpts = append(walletOpts, wallet.WithAutoFunding(amount))
	}
	funds := wallet.NewBook(walletOpts...)

	bus := events.NewBus(zl.Named("bus"))
	defer bus.Close()
	publishers := events.Multi{bus}

	if cfg.Redis.URL != "" {
		client, err := events.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		redisPub := events.NewRedisPublisher(client, cfg.Redis, zl.Named("redis"))
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := redisPub.Close(closeCtx); err != nil {
				logger.Warn("redis publisher close failed", "error", err)
			}
		}()
		publishers = append(publishers, redisPub)
		logger.Info("publishing events to redis", "channel", redisPub.Channel())
	}

	prom := metrics.NewPrometheus()
	if pool != nil {
		prom.Registry().MustRegister(database.NewMonitor(pool, zl.Named("db-monitor")))
	}
	otelMetrics, err := metrics.NewRegistry("auction-ledger")
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	l := ledger.New(auction.NewSystemClock(), funds,
		ledger.WithJournal(j),
		ledger.WithPublisher(publishers),
		ledger.WithMetrics(metrics.Multi{prom, otelMetrics}),
		ledger.WithLogger(zl.Named("ledger")),
	)
	if err := l.Restore(ctx, history); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		return err
	}
	base := rest.NewBaseHandler("v1", logger)
	auth := rest.NewAuthMiddleware(&rest.AuthConfig{
		JWTSecret:   secret,
		Issuer:      cfg.Auth.Issuer,
		TokenExpiry: cfg.Auth.TokenExpiry,
	}, base)

	hub := websocket.NewHub(bus, websocket.Config{
		PingInterval:   cfg.WebSocket.PingInterval,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, zl.Named("websocket"), prom)
	go hub.Run(ctx)

	limiter := rest.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)
	go limiter.Run(ctx, time.Minute)

	health := rest.NewHealthHandler(cfg.Version, l.Seq)
	if pool != nil {
		health.AddCheck("database", func(ctx context.Context) error {
			return pool.Health(ctx, time.Second)
		})
	}

	router := rest.NewRouter(base, rest.RouterDeps{
		Ledger:      l,
		Funds:       funds,
		Auth:        auth,
		Metrics:     prom,
		WebSocket:   hub,
		RateLimiter: limiter,
		Health:      health,
		CORSOrigins: cfg.Server.CORSOrigins,
		MaxPageSize: cfg.Ledger.MaxPageSize,
		Logger:      logger,
	})

	server := rest.NewServer(rest.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, logger)

	err = server.Run(ctx)
	logger.Info("shutting down gracefully", "seq", l.Seq())
	return err
}

// openStore picks the journal store. The pool is nil for the in-memory store.
func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (journal.Store, *database.Pool, error) {
	if cfg.Database.URL == "" {
		zl.Warn("no database configured, journal is kept in memory")
		return journal.NewMemoryStore(), nil, nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL, zl.Named("migrate")); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := database.NewPool(ctx, cfg.Database, zl.Named("database"))
	if err != nil {
		return nil, nil, err
	}
	return journal.NewPostgresStore(pool), pool, nil
}

// jwtSecret falls back to a random per-process secret outside production
func jwtSecret(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.Auth.JWTSecret != "" {
		return []byte(cfg.Auth.JWTSecret), nil
	}
	if cfg.Environment == "production" {
		return nil, errors.New("auth.jwt_secret is required in production")
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	logger.Warn("auth.jwt_secret not set, using a random secret; tokens will not survive a restart")
	return secret, nil
}

func printToken(cfg *config.Config, address string) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set to issue tokens")
	}
	who, err := values.ParseIdentity(address)
	if err != nil {
		return err
	}
	auth := rest.NewAuthMiddleware(&rest.AuthConfig{
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		Issuer:      cfg.Auth.Issuer,
		TokenExpiry: cfg.Auth.TokenExpiry,
	}, nil)
	token, err := auth.GenerateToken(who)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
