package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/askql/askql/internal/bootstrap"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/migrations"
	"github.com/askql/askql/internal/seed"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	seedRows := flag.Int("seed", 0, "after migrating up, insert the two demo projects plus this many generated ones")
	seedValue := flag.Int64("seed-value", time.Now().UTC().UnixNano(), "random seed for generated projects")
	reset := flag.Bool("reset", false, "delete existing projects before seeding")
	flag.Parse()

	cfg, err := config.LoadFromEnv("askql-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := bootstrap.DB(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner, err := migrations.NewRunner(cfg.Database.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration setup failed: %v\n", err)
		os.Exit(1)
	}

	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
		return
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}

	if *seedRows <= 0 {
		return
	}
	if *reset {
		if err := seed.Reset(ctx, db); err != nil {
			fmt.Fprintf(os.Stderr, "seed reset failed: %v\n", err)
			os.Exit(1)
		}
	}
	inserted, err := seed.Insert(ctx, db, runner.Dialect(), seed.Projects(*seedValue, *seedRows), 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d project(s) with seed %d\n", inserted, *seedValue)
}
