package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/config"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
	"github.com/abushana-oss/mithran-sub003/internal/handler"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/cache"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/memory"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/messaging"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/persistence"
	"github.com/abushana-oss/mithran-sub003/internal/modules/calculator"
	"github.com/abushana-oss/mithran-sub003/internal/observability"
	"github.com/abushana-oss/mithran-sub003/pkg/database"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.OTelEnabled {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.ServiceName)
		if err != nil {
			logger.Fatal("Failed to initialise tracing", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	// Repositories
	var (
		calcRepo repository.CalculatorRepository
		jobRepo  repository.BatchJobRepository
		runRepo  repository.CalculatorRunRepository
		pool     *pgxpool.Pool
	)
	if cfg.App.Storage == "memory" {
		calcRepo = memory.NewCalculatorRepository()
		jobRepo = memory.NewBatchJobRepository()
		runRepo = memory.NewCalculatorRunRepository()
	} else {
		pool, err = database.NewPool(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		calcRepo = persistence.NewCalculatorRepository(pool)
		jobRepo = persistence.NewBatchJobRepository(pool)
		runRepo = persistence.NewCalculatorRunRepository(pool)
	}

	// Definition cache
	defCache := cache.NewLocalCache(cfg.Redis.TTL)
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		defCache = cache.NewRedisCache(client, cfg.Redis.TTL)
	}

	// Job announcements
	var publisher calculator.JobPublisher
	if cfg.AMQP.URL != "" {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()
		p, err := messaging.NewPublisher(conn, cfg.AMQP.TopicPrefix)
		if err != nil {
			logger.Fatal("Failed to declare batch topic", zap.Error(err))
		}
		publisher = p
	}

	engine := calculator.NewEngine(logger)
	svc := calculator.NewService(calcRepo, defCache, jobRepo, runRepo, publisher, engine, logger, calculator.Options{
		EvalTimeout:         cfg.Engine.EvalTimeout,
		MaxExpressionLength: cfg.Engine.MaxExpressionLength,
		MaxBatchRows:        cfg.Worker.MaxBatchRows,
	})

	// In-memory jobs are only visible to this process, so run them here.
	if pool == nil {
		runner := calculator.NewBatchRunner(engine, calcRepo, jobRepo, runRepo, logger, cfg.Worker.Count, cfg.Worker.BatchSize)
		go runner.Poll(ctx, cfg.Worker.PollInterval, 10)
	}

	app := handler.NewApp(svc, cfg, logger)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		app.Shutdown()
	}()

	logger.Info("Starting API server",
		zap.String("port", cfg.App.Port),
		zap.String("storage", cfg.App.Storage),
		zap.Bool("redis_cache", cfg.Redis.Addr != ""),
		zap.Bool("amqp", publisher != nil),
	)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
