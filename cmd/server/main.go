package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/parcelmatch/internal/bids"
	"github.com/example/parcelmatch/internal/commission"
	"github.com/example/parcelmatch/internal/config"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/eta"
	"github.com/example/parcelmatch/internal/geo"
	"github.com/example/parcelmatch/internal/httpapi"
	"github.com/example/parcelmatch/internal/logging"
	"github.com/example/parcelmatch/internal/matching"
	"github.com/example/parcelmatch/internal/notify"
	"github.com/example/parcelmatch/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if os.Getenv("MIGRATE") == "true" {
		if err := applyMigrations(ctx, database); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	var tripIndex *geo.RedisTripIndex
	if cfg.RedisAddr != "" {
		tripIndex = geo.NewRedisTripIndex(cfg.RedisAddr, cfg.RedisPassword, "trips_geo")
		if err := tripIndex.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, matching will scan the store", "error", err)
			tripIndex = nil
		} else {
			defer tripIndex.Close()
		}
	}

	wsreg := notify.NewWSRegistry(logger)
	sinks := notify.MultiSink{notify.RegistrySink{Reg: wsreg}}
	var kafkaSink *notify.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kafkaSink)
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookToken))
	}
	dispatcher := notify.NewDispatcher(sinks, 256, logger)

	packageRepo := storage.NewPackageRepo(database)
	tripRepo := storage.NewTripRepo(database)
	bidRepo := storage.NewBidRepo(database)
	driverRepo := storage.NewDriverRepo(database)
	walletRepo := storage.NewWalletRepo(database)
	reservationRepo := storage.NewReservationRepo(database)
	ledgerRepo := storage.NewLedgerRepo(database)

	bidSvc := bids.NewService(database, packageRepo, tripRepo, bidRepo, driverRepo, dispatcher, logger)
	commissionSvc := commission.NewService(database, walletRepo, reservationRepo, ledgerRepo, logger)

	var engineIndex matching.TripIndex
	if tripIndex != nil {
		engineIndex = tripIndex
	}
	engine := matching.NewEngine(packageRepo, tripRepo, driverRepo, engineIndex, logger)
	engine.SpeedKmh = cfg.MatcherSpeedKmh
	engine.Concurrency = cfg.MatcherConcurrency
	if cfg.OSRMBaseURL != "" {
		engine.SetETAClient(eta.NewOSRMClient(cfg.OSRMBaseURL))
	}

	sweeper := commission.NewSweeper(commissionSvc, cfg.SweepSpec, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("sweep scheduler failed to start", "error", err)
		os.Exit(1)
	}

	deps := httpapi.Deps{
		Bids:       bidSvc,
		Commission: commissionSvc,
		Matcher:    engine,
		Packages:   packageRepo,
		Trips:      tripRepo,
		Wallets:    walletRepo,
		WSReg:      wsreg,
		DB:         database,
		Logger:     logger,
	}
	if tripIndex != nil {
		deps.TripIndex = tripIndex
	}
	api := httpapi.NewServer(deps)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("parcelmatch api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	<-sweeper.Stop().Done()
	dispatcher.Close()
	if kafkaSink != nil {
		_ = kafkaSink.Close()
	}
	logger.Info("bye")
}

// applyMigrations runs every .sql file under migrations/ in name order.
func applyMigrations(ctx context.Context, database *db.Database) error {
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		return err
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := database.Exec(ctx, string(b)); err != nil {
			return err
		}
	}
	return nil
}
