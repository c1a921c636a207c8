// Package main applies the embedded PostgreSQL migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"motoledger/internal/infrastructure/config"
	"motoledger/internal/infrastructure/storage/postgres"
	"motoledger/pkg/logger"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(logger.Config{Level: *logLevel, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	ctx := logger.WithLogger(context.Background(), log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		log.Fatalw("migrations only apply to the postgres driver", "driver", cfg.Database.Driver)
	}

	m, err := postgres.NewMigrator(cfg.Database.DSN())
	if err != nil {
		log.Fatalw("failed to open migrator", "error", err)
	}
	defer func() { _ = m.Close() }()

	switch command {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "steps":
		n, perr := intArg(args, "steps")
		if perr != nil {
			log.Fatalw("invalid argument", "error", perr)
		}
		err = m.Steps(ctx, n)
	case "force":
		v, perr := intArg(args, "version")
		if perr != nil {
			log.Fatalw("invalid argument", "error", perr)
		}
		err = m.Force(ctx, v)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.Fatalw("failed to read version", "error", verr)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalw("migration failed", "command", command, "error", err)
	}
	log.Infow("migration finished", "command", command)
}

func intArg(args []string, name string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a numeric argument", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, args[1], err)
	}
	return n, nil
}

func printUsage() {
	fmt.Println(`Usage: migrate [flags] <command> [args]

Commands:
  up             apply all pending migrations
  down           roll back all migrations
  steps <n>      apply (n > 0) or roll back (n < 0) n migrations
  force <v>      set the version without running migrations
  version        print the current version`)
}
