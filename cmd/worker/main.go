package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/config"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/messaging"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/persistence"
	"github.com/abushana-oss/mithran-sub003/internal/modules/calculator"
	"github.com/abushana-oss/mithran-sub003/internal/observability"
	"github.com/abushana-oss/mithran-sub003/pkg/database"
)

const pendingBatchLimit = 10

func main() {
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.App.Storage != "postgres" {
		log.Fatalf("Worker requires STORAGE=postgres, got %q", cfg.App.Storage)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.OTelEnabled {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.ServiceName+"-worker")
		if err != nil {
			logger.Fatal("Failed to initialise tracing", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	runner := calculator.NewBatchRunner(
		calculator.NewEngine(logger),
		persistence.NewCalculatorRepository(pool),
		persistence.NewBatchJobRepository(pool),
		persistence.NewCalculatorRunRepository(pool),
		logger,
		cfg.Worker.Count,
		cfg.Worker.BatchSize,
	)

	logger.Info("Worker service ready",
		zap.Int("workers", cfg.Worker.Count),
		zap.Int("batch_size", cfg.Worker.BatchSize),
		zap.Duration("poll_interval", cfg.Worker.PollInterval),
	)

	var wg sync.WaitGroup
	if cfg.AMQP.URL != "" {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", zap.Error(err))
		}
		defer ch.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := messaging.Consume(ctx, ch, cfg.AMQP.TopicPrefix, messaging.BatchRequested, logger,
				func(ctx context.Context, msg messaging.BatchRequestedMessage) error {
					return runner.Run(ctx, msg.JobID)
				})
			if err != nil && !errors.Is(err, context.Canceled) {
				// Polling keeps jobs moving without announcements.
				logger.Error("Batch consumer stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := runner.RunPending(ctx, pendingBatchLimit); err != nil {
			logger.Error("Failed to run pending jobs", zap.Error(err))
		}
		_ = runner.Poll(ctx, cfg.Worker.PollInterval, pendingBatchLimit)
	}()

	wg.Wait()
	logger.Info("Shutting down worker service...")
}
