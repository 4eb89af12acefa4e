package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/infrastructure/config"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/database"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultFile, "Path to configuration file")
		action     = flag.String("action", "up", "Migration action: up, down, status, force")
		steps      = flag.Int("steps", 0, "Number of migrations to roll back (0 = all)")
		version    = flag.Int("version", -1, "Version to record (for force action)")
	)
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		slog.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg.Database.URL, *action, *steps, *version, logger); err != nil {
		logger.Error("migration failed", zap.String("action", *action), zap.Error(err))
		os.Exit(1)
	}
}

func run(url, action string, steps, version int, logger *zap.Logger) error {
	switch action {
	case "up", "down", "status":
	case "force":
		if version < 0 {
			return fmt.Errorf("force requires -version")
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if steps < 0 {
		return fmt.Errorf("steps must not be negative")
	}

	m, err := database.NewMigrator(url, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	switch action {
	case "up":
		return m.Up()
	case "down":
		return m.Down(steps)
	case "force":
		return m.Force(version)
	default:
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		return nil
	}
}
