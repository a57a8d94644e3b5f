package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/healthsync/internal/api"
	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/outbox"
	persistence "example.com/healthsync/internal/persistence/postgres"
	httptransport "example.com/healthsync/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	sink := logging.NewSink(cfg.LogFile)
	defer sink.Close()
	logger := sink.Logger("receiver")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithClientID("healthsync-receiver"))
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(sink.Logger("outbox")))
	go dispatcher.Start(ctx)

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		runDLQManager(ctx, manager, cfg.DLQPollInterval, sink.Logger("dlq"))
	}()

	service := domain.NewService(repo)
	handler := api.NewHandler(service, domain.DefaultCatalog())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLogger(sink.Logger("http"), authMiddleware.Wrap(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("receiver listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
	<-managerDone
}

func runDLQManager(ctx context.Context, manager *outbox.DLQManager, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Printf("DLQ manager started (interval=%s)", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				logger.Printf("dlq manager error: %v", err)
			} else if processed > 0 {
				logger.Printf("dlq manager processed %d entries", processed)
			}
		}
	}
}
