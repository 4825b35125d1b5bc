package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"coinpulse/aggregator"
	"coinpulse/collector"
	"coinpulse/config"
	"coinpulse/exchange"
	"coinpulse/internal/event"
	"coinpulse/logger"
	"coinpulse/server"
	"coinpulse/storage"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	if config.IsProductionLike(env) && (cfg.Market.Key == "" || cfg.Market.Secret == "") {
		log.WithFields(logger.Fields{"environment": env}).Error("venue credentials are required in production-like environments")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Coinpulse.Name,
		"version":     cfg.Coinpulse.Version,
		"environment": env,
	}).Info("starting coinpulse")

	if cfg.Metrics.CloudWatchEnabled {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := event.NewBus()
	venue := cfg.Market.Venue

	trendCache := aggregator.NewTrendCache()
	trendCache.Bind(bus.Trends(venue))

	var orderStore aggregator.OrderStore
	if cfg.Storage.Postgres.Enabled {
		store, err := storage.New(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			log.WithError(err).Error("failed to initialize postgres store")
			os.Exit(1)
		}
		defer store.Close()

		storage.NewRecorder(store).Bind(bus, venue)
		orderStore = store
	} else {
		log.WithComponent("main").Info("postgres storage disabled; raw rows will not be persisted")
	}

	engine := aggregator.NewEngine(cfg.Analytics, orderStore, trendCache)

	api := exchange.NewClient(cfg.Market)
	coll := collector.New(cfg, api, bus)
	if err := coll.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start collector")
		os.Exit(1)
	}

	var srv *server.Server
	srvErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv = server.New(cfg.Server, engine)
		srv.Bind(bus, venue)
		go func() {
			srvErr <- srv.Run(ctx)
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-srvErr:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		coll.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("coinpulse stopped")
}
