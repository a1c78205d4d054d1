package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/config"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/hcldef"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/persistence"
	"github.com/abushana-oss/mithran-sub003/internal/modules/calculator"
	"github.com/abushana-oss/mithran-sub003/internal/observability"
	"github.com/abushana-oss/mithran-sub003/pkg/database"
)

var (
	definitionPath = flag.String("path", "definitions", "HCL file or directory of calculator definitions")
	owner          = flag.String("owner", "", "Owner id assigned to seeded calculators")
)

func main() {
	flag.Parse()
	godotenv.Load()

	if *owner == "" {
		log.Fatalf("-owner is required")
	}

	cfg := config.Load()
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	calcs, err := hcldef.LoadPath(*definitionPath)
	if err != nil {
		logger.Fatal("Failed to load definitions", zap.Error(err))
	}
	if len(calcs) == 0 {
		logger.Warn("No calculator definitions found", zap.String("path", *definitionPath))
		return
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	// Create goes through validation, so seeded definitions obey the same rules as API writes.
	svc := calculator.NewService(persistence.NewCalculatorRepository(pool), nil, nil, nil, nil,
		calculator.NewEngine(logger), logger, calculator.Options{
			EvalTimeout:         cfg.Engine.EvalTimeout,
			MaxExpressionLength: cfg.Engine.MaxExpressionLength,
		})

	start := time.Now()
	seeded := 0
	for _, calc := range calcs {
		created, err := svc.Create(ctx, calc, *owner)
		if err != nil {
			logger.Error("Failed to seed calculator", zap.String("name", calc.Name), zap.Error(err))
			continue
		}
		seeded++
		logger.Info("Seeded calculator",
			zap.String("id", created.ID.String()),
			zap.String("name", created.Name),
			zap.Int("fields", len(created.Fields)),
			zap.Int("formulas", len(created.Formulas)),
		)
	}

	fmt.Printf("Seeded %d of %d calculators in %v\n", seeded, len(calcs), time.Since(start))
}
