package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/abushana-oss/mithran-sub003/config"
	"github.com/abushana-oss/mithran-sub003/pkg/database"
)

func main() {
	godotenv.Load()

	upCmd := flag.NewFlagSet("up", flag.ExitOnError)
	downCmd := flag.NewFlagSet("down", flag.ExitOnError)
	downSteps := downCmd.Int("steps", 1, "Number of migrations to roll back")
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	forceCmd := flag.NewFlagSet("force", flag.ExitOnError)

	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands: up, down [-steps N], status, force <version>")
		os.Exit(1)
	}

	cfg := config.Load()
	m, err := database.NewMigrator(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to open migrations: %v", err)
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		upCmd.Parse(os.Args[2:])
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		showStatus(m)
	case "down":
		downCmd.Parse(os.Args[2:])
		if err := m.Steps(-*downSteps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to roll back migrations: %v", err)
		}
		showStatus(m)
	case "status":
		statusCmd.Parse(os.Args[2:])
		showStatus(m)
	case "force":
		forceCmd.Parse(os.Args[2:])
		if forceCmd.NArg() != 1 {
			log.Fatalf("Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(forceCmd.Arg(0))
		if err != nil {
			log.Fatalf("Invalid version %q: %v", forceCmd.Arg(0), err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("Failed to force version: %v", err)
		}
		showStatus(m)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func showStatus(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("Migration Status: no migrations applied")
		return
	}
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	state := "CLEAN"
	if dirty {
		state = "DIRTY"
	}
	fmt.Printf("Migration Status: version %d [%s]\n", version, state)
}
