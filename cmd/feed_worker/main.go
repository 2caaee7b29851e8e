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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/solidusdata/feedpipe/internal/feed_service/app"
	"github.com/solidusdata/feedpipe/internal/feed_service/delivery"
	"github.com/solidusdata/feedpipe/internal/feed_service/repository/postgres"
	"github.com/solidusdata/feedpipe/internal/platform/config"
	"github.com/solidusdata/feedpipe/internal/platform/database"
	"github.com/solidusdata/feedpipe/internal/platform/logger"
	"github.com/solidusdata/feedpipe/internal/platform/messagebroker"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

const (
	serviceName     = "feed-worker"
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
	log.Info("Starting service...", "poll_interval", cfg.WorkerPollInterval, "workers", cfg.WorkerCount)

	dbPool, err := database.NewPostgresPool(mainCtx, cfg.PostgresDSN, log)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, log, serviceName)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	log.Info("NATS connection initialized")

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
	notifier := app.NewNATSNotifier(natsClient, log)

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

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("Starting feed batch loop...", "poll_interval", cfg.WorkerPollInterval)
		ticker := time.NewTicker(cfg.WorkerPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				started, err := orchestrator.RunDueFeeds(groupCtx)
				if err != nil {
					log.ErrorContext(groupCtx, "Batch cycle failed, stopping worker", "error", err)
					return err
				}
				if started > 0 {
					log.InfoContext(groupCtx, "Batch cycle finished", "generations_started", started)
				}
			case <-groupCtx.Done():
				log.InfoContext(groupCtx, "Feed batch loop stopping", "error", groupCtx.Err())
				return groupCtx.Err()
			}
		}
	})

	g.Go(func() error {
		log.Info("Starting metrics server...", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
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
