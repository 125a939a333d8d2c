package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [-config path] up|down|version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	url := cfg.Persistence.Database.URL
	if url == "" {
		logger.Error("persistence.database.url is not set")
		os.Exit(1)
	}

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "up":
		err = persistence.MigrateUp(url)
	case "down":
		err = persistence.MigrateDown(url)
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("migration failed", "command", cmd, "error", err)
		os.Exit(1)
	}

	version, dirty, err := persistence.MigrationVersion(url)
	if err != nil {
		logger.Error("failed to read schema version", "error", err)
		os.Exit(1)
	}
	logger.Info("schema version", "version", version, "dirty", dirty)

	if err := listTables(context.Background(), cfg.Persistence.Database, logger); err != nil {
		logger.Error("failed to verify tables", "error", err)
		os.Exit(1)
	}
}

func listTables(ctx context.Context, db config.DatabaseConfig, logger *slog.Logger) error {
	pool, err := persistence.NewConnectionPool(ctx, db)
	if err != nil {
		return err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	logger.Info("tables in public schema", "tables", tables)
	return nil
}
