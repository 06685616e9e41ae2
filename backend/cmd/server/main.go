package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/user/papertrade/backend/internal/auth"
	"github.com/user/papertrade/backend/internal/config"
	"github.com/user/papertrade/backend/internal/database"
	"github.com/user/papertrade/backend/internal/handlers"
	"github.com/user/papertrade/backend/internal/ledger"
	"github.com/user/papertrade/backend/internal/logging"
	"github.com/user/papertrade/backend/internal/memstore"
	"github.com/user/papertrade/backend/internal/pricer"
	"github.com/user/papertrade/backend/internal/ticker"
	"github.com/user/papertrade/backend/internal/trading"
	internalws "github.com/user/papertrade/backend/internal/websocket"
)

// backend is what the engine needs from a store: users, sessions and the ledger.
type backend interface {
	trading.UserRepository
	auth.SessionRepository
	ledger.Ledger
	Close()
}

func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (backend, error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn("Using in-memory store, state is lost on restart")
		return memstore.New(), nil
	}
	return database.Open(ctx, cfg.DatabaseURL, logging.Component(log, "database"))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputFile: cfg.LogFile})
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	sessions, err := auth.NewSessionStore(store, []byte(cfg.SessionSecret),
		auth.WithTTL(cfg.SessionTTL),
		auth.WithLogger(logging.Component(log, "sessions")),
	)
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}
	go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)

	oracle := pricer.New(pricer.Config{
		BaseURL:        cfg.PriceAPIURL,
		SettlementMint: cfg.SettlementMint,
		Timeout:        cfg.PriceTimeout,
		RateLimit:      cfg.PriceRateLimit,
	}, logging.Component(log, "pricer"))

	// Traded assets are re-quoted and pushed to /ws/prices subscribers
	feed := ticker.NewFeed(oracle, cfg.PriceFeedInterval, logging.Component(log, "ticker"))
	hub := internalws.NewHub(logging.Component(log, "websocket"))
	go feed.Run(ctx)
	go hub.Run(ctx, feed.Updates())

	defaults := cfg.TradeDefaults()
	engine := trading.NewEngine(sessions, store, store, oracle,
		trading.Config{StartingBalance: cfg.StartingBalance, Defaults: &defaults},
		trading.WithWatcher(feed),
		trading.WithLogger(logging.Component(log, "trading")),
	)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: log.Writer()}))
	handlers.New(engine, hub, logging.Component(log, "http")).Routes(app)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("Error during shutdown: %v", err)
		}
	}()

	log.Infof("Starting server on :%s (store=%s)", cfg.Port, cfg.StoreBackend)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Errorf("Server stopped: %v", err)
	}
}
