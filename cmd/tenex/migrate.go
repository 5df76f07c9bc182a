package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/tenex/config"
	"github.com/BaSui01/tenex/internal/migration"
)

// runMigrate 处理 migrate 子命令：tenex migrate <up|down|...> [args] [flags]
func runMigrate(args []string) error {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage()
		if len(args) < 1 {
			return errors.New("missing migrate subcommand")
		}
		return nil
	}
	sub := args[0]

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	// 位置参数（版本号）在 flag 之前
	positional, rest := splitPositional(args[1:])
	if err := fs.Parse(rest); err != nil {
		return err
	}
	positional = append(positional, fs.Args()...)

	logger := initLogger(config.LogConfig{Level: "info", Format: "console", OutputPaths: []string{"stderr"}})
	defer func() { _ = logger.Sync() }()
	m, err := createMigrator(*configPath, *dbType, *dbURL, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = migration.NewCLI(m).Run(ctx, sub, positional)
	if errors.Is(err, migration.ErrUnknownCommand) {
		printMigrateUsage()
	}
	return err
}

func splitPositional(args []string) (positional, rest []string) {
	for i, a := range args {
		if isFlag(a) {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

// isFlag 区分 flag 与负数步数（steps -1）
func isFlag(a string) bool {
	return len(a) > 1 && a[0] == '-' && (a[1] < '0' || a[1] > '9')
}

// createMigrator 优先使用 --db-type/--db-url，否则从配置的 SQL 存储读取
func createMigrator(configPath, dbType, dbURL string, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dbCfg := cfg.Store.SQL.Database()
	if dbType != "" {
		dbCfg.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  tenex migrate <subcommand> [version] [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  reset       Rollback all migrations
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  info        Show migration summary

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql (default: store.sql.driver)
  --db-url <url>      Database connection URL (default: from config)`)
}
