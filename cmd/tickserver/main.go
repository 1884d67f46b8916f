// Command tickserver runs the Splittermond combat tracker behind a gRPC
// service and a websocket live feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splittermond/internal/config"
	"github.com/cory-johannsen/splittermond/internal/game/check"
	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/dice"
	"github.com/cory-johannsen/splittermond/internal/game/status"
	"github.com/cory-johannsen/splittermond/internal/hostbridge"
	"github.com/cory-johannsen/splittermond/internal/i18n"
	"github.com/cory-johannsen/splittermond/internal/notify"
	"github.com/cory-johannsen/splittermond/internal/observability"
	"github.com/cory-johannsen/splittermond/internal/scripting"
	"github.com/cory-johannsen/splittermond/internal/server"
	"github.com/cory-johannsen/splittermond/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "tickserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	repo, err := openRepository(ctx, cfg, logger, lifecycle)
	if err != nil {
		logger.Fatal("opening combat repository", zap.Error(err))
	}

	bundle, err := loadCatalogs(cfg.Content)
	if err != nil {
		logger.Fatal("loading locale catalogs", zap.Error(err))
	}
	loc := bundle.Localizer(cfg.Content.Locale)
	logger.Info("locale catalogs loaded",
		zap.Strings("locales", bundle.Locales()),
		zap.String("locale", loc.Locale()),
	)

	defs := status.NewRegistry()
	if cfg.Content.StatusDir != "" {
		if defs, err = status.LoadDirectory(cfg.Content.StatusDir); err != nil {
			logger.Fatal("loading status definitions", zap.Error(err))
		}
	}
	logger.Info("status definitions loaded", zap.Int("count", len(defs.All())))

	scripts := scripting.NewManager(roller, logger)
	if cfg.Content.ScriptDir != "" {
		if err := scripts.Load(cfg.Content.ScriptDir, cfg.Content.ScriptInstructionLimit); err != nil {
			logger.Fatal("loading lua scripts", zap.Error(err))
		}
	}
	defer scripts.Close()

	hub := hostbridge.NewHub(hostbridge.HubConfig{
		Definitions:   defs,
		Hooks:         scripts,
		Localizer:     loc,
		Sink:          notify.NewLogSink(logger),
		Horizon:       cfg.TickBar.Horizon(),
		ViewportTicks: cfg.TickBar.ViewportTicks,
		WriteTimeout:  cfg.Server.WriteTimeout,
		PingInterval:  cfg.Server.PingInterval,
		Logger:        logger,
	})

	tracker := combat.NewTracker(repo, combat.NewDiceInitiativeRoller(roller), logger,
		combat.WithObserver(hub),
		combat.WithTickPrompt(hub),
		combat.WithTieBreaker(combat.RandomTieBreaker{Src: roller.Source()}),
	)
	hub.Bind(tracker)

	svc := hostbridge.NewService(hostbridge.ServiceConfig{
		Tracker:       tracker,
		Checks:        check.NewRoller(roller, cfg.Rules.CheckRules(), logger),
		Definitions:   defs,
		Localizer:     loc,
		Horizon:       cfg.TickBar.Horizon(),
		ViewportTicks: cfg.TickBar.ViewportTicks,
		Logger:        logger,
	})

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
	if err != nil {
		logger.Fatal("listening for grpc", zap.String("addr", cfg.Server.GRPCAddr()), zap.Error(err))
	}
	lifecycle.Add("grpc", server.GRPCService(hostbridge.NewGRPCServer(svc, logger), grpcLis))

	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr())
	if err != nil {
		logger.Fatal("listening for http", zap.String("addr", cfg.Server.HTTPAddr()), zap.Error(err))
	}
	httpSrv := &http.Server{
		Handler:           hostbridge.NewHTTPHandler(hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	feed := server.HTTPService(httpSrv, httpLis)
	lifecycle.Add("feed", &server.FuncService{
		StartFn: feed.Start,
		StopFn: func(ctx context.Context) error {
			hub.Close()
			return feed.Stop(ctx)
		},
	})

	logger.Info("tick server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("grpc_addr", grpcLis.Addr().String()),
		zap.String("http_addr", httpLis.Addr().String()),
		zap.String("storage", cfg.Server.Storage),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openRepository returns the configured combat store. A postgres store also
// registers a health-check service that closes the pool on shutdown.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger, lc *server.Lifecycle) (combat.Repository, error) {
	if cfg.Server.Storage != "postgres" {
		return combat.NewMemoryRepository(), nil
	}

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	stop := make(chan struct{})
	lc.Add("postgres", &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return nil
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func(context.Context) error {
			close(stop)
			pool.Close()
			return nil
		},
	})
	return postgres.NewCombatRepository(pool.DB()), nil
}

func loadCatalogs(c config.ContentConfig) (*i18n.Bundle, error) {
	if c.LocaleDir != "" {
		return i18n.LoadDir(c.LocaleDir)
	}
	return i18n.LoadEmbedded()
}
