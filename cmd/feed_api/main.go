package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solidusdata/feedpipe/internal/feed_service/app"
	"github.com/solidusdata/feedpipe/internal/feed_service/delivery"
	"github.com/solidusdata/feedpipe/internal/feed_service/repository/postgres"
	transporthttp "github.com/solidusdata/feedpipe/internal/feed_service/transport/http"
	"github.com/solidusdata/feedpipe/internal/platform/config"
	"github.com/solidusdata/feedpipe/internal/platform/database"
	"github.com/solidusdata/feedpipe/internal/platform/logger"
	"github.com/solidusdata/feedpipe/internal/platform/messagebroker"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

const (
	serviceName     = "feed-api"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Starting service...", "port", cfg.APIPort)

	dbPool, err := database.NewPostgresPool(mainCtx, cfg.PostgresDSN, log)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	// The broker is optional for the API: manual triggers still work
	// without life-cycle events.
	var notifier app.Notifier = app.NewNoopNotifier()
	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, log, serviceName)
	if err != nil {
		log.Warn("NATS unavailable, generation events disabled", "error", err)
	} else {
		defer natsClient.Close()
		notifier = app.NewNATSNotifier(natsClient, log)
		log.Info("NATS connection initialized")
	}

	sink, err := storage.NewSink(storage.Config{
		Provider: cfg.StorageProvider,
		BasePath: cfg.StorageBasePath,
		S3Bucket: cfg.S3Bucket,
		S3Region: cfg.S3Region,
	}, log)
	if err != nil {
		log.Error("Failed to initialize artifact storage", "error", err)
		os.Exit(1)
	}

	feedRepo := postgres.NewPgFeedRepository(dbPool, log)
	generationRepo := postgres.NewPgGenerationRepository(dbPool, log)
	recordSource := postgres.NewPgRecordSource(dbPool, log)

	deliveryDeps := delivery.Deps{
		Sink:    sink,
		Logger:  log,
		BaseURL: cfg.BaseURL,
		SMTP: delivery.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		},
	}

	orchestrator := app.NewOrchestrator(
		feedRepo, generationRepo, recordSource, notifier, deliveryDeps,
		app.OrchestratorConfig{
			WorkerCount:     cfg.WorkerCount,
			DeliveryTimeout: cfg.DeliveryTimeout,
		},
		log,
	)

	handler := transporthttp.NewFeedHandler(orchestrator, feedRepo, generationRepo, sink, log)
	router := transporthttp.NewRouter(handler, log)
	server := transporthttp.NewServer(cfg.APIPort, router)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("Starting HTTP server...", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating HTTP server graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Info("Received shutdown signal", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service stopped gracefully")
}
