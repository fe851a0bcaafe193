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

	"github.com/jogardn/offer-configurator/internal/config"
	"github.com/jogardn/offer-configurator/internal/events"
	"github.com/jogardn/offer-configurator/internal/middleware"
	"github.com/jogardn/offer-configurator/internal/notifier"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	if !cfg.KafkaEnabled() {
		logger.Fatal("KAFKA_BROKERS must be set for the offer notifier")
	}

	inbox := notifier.NewInbox(logger)

	logger.WithField("brokers", cfg.KafkaBrokers).Info("Initializing Kafka consumer...")

	var consumer *events.Consumer
	for i := 0; i < 10; i++ {
		consumer, err = events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, inbox, events.DefaultRetryPolicy(), logger)
		if err == nil {
			logger.Info("Successfully connected to Kafka")
			break
		}

		logger.WithError(err).WithField("attempt", i+1).Warn("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer after retries")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.WithFields(logrus.Fields{
			"topic": events.OfferSubmittedTopic,
			"group": cfg.KafkaGroupID,
		}).Info("Starting Kafka consumer for offer events")
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Kafka consumer error")
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.CORS())
	router.Use(middleware.Logging(logger))
	notifier.NewHandler(inbox, consumer, logger).Register(router)

	srv := &http.Server{
		Addr:         ":" + cfg.NotifierPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.NotifierPort).Info("Starting offer notifier")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down offer notifier...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server forced to shutdown")
	}

	cancel()
	if err := consumer.Close(); err != nil {
		logger.WithError(err).Error("Failed to close Kafka consumer")
	}

	logger.Info("Offer notifier gracefully stopped")
}
