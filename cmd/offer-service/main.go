package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/internal/catalog"
	"github.com/jogardn/offer-configurator/internal/circuitbreaker"
	"github.com/jogardn/offer-configurator/internal/config"
	"github.com/jogardn/offer-configurator/internal/events"
	"github.com/jogardn/offer-configurator/internal/middleware"
	"github.com/jogardn/offer-configurator/internal/offers"
	"github.com/jogardn/offer-configurator/internal/storage/memory"
	"github.com/jogardn/offer-configurator/internal/storage/postgres"
	"github.com/jogardn/offer-configurator/internal/websocket"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, closeGateway := openGateway(ctx, cfg, logger)
	defer closeGateway()

	breakers := circuitbreaker.NewManager(logger)
	storageBreaker := breakers.GetOrCreate("offer-storage", circuitbreaker.Config{
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
		IsFailure:   postgres.IsUnavailable,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from":            from.String(),
				"to":              to.String(),
			}).Warn("Storage circuit breaker changed state")
		},
	})

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	opts := []offers.Option{
		offers.WithGuard(storageBreaker),
		offers.WithBroadcaster(hub),
	}

	// Event publishing is optional; offers are accepted without a broker.
	if cfg.KafkaEnabled() {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer publisher.Close()
		opts = append(opts, offers.WithPublisher(publisher))
	} else {
		logger.Info("KAFKA_BROKERS not set, offer events disabled")
	}

	service := offers.NewService(catalog.Default(), gateway, logger, opts...)
	handler := offers.NewHandler(service, offers.Diagnostics{
		DatabaseURLSet:  cfg.DatabaseURL != "",
		DatabaseNameSet: cfg.DBName != "",
		Breakers:        breakers,
		Dashboard:       hub,
	}, logger)

	router := mux.NewRouter()
	router.Use(middleware.CORS())
	router.Use(middleware.Logging(logger))
	handler.Register(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"storage": cfg.Storage,
		}).Info("Starting offer service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := service.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Pending offer events were not published")
	}
	cancel()

	logger.Info("Server gracefully stopped")
}

func openGateway(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (offers.Gateway, func()) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory offer storage, offers are lost on restart")
		return memory.New(), func() {}
	}

	db, err := postgres.Open(cfg.DSN())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	gateway := postgres.New(db, logger)
	if err := gateway.WaitForConnection(ctx, 30, 2*time.Second); err != nil {
		logger.WithError(err).Fatal("Database did not become ready")
	}
	if err := gateway.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to create tables")
	}

	return gateway, func() {
		if err := gateway.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}
}
