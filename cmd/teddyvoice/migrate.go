package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/config"
	"github.com/BaSui01/teddyvoice/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate 处理 migrate 命令及其子命令
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand, subargs := args[0], args[1:]
	var err error
	switch subcommand {
	case "up":
		err = withMigrator("migrate up", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunUp(ctx)
		})
	case "down":
		var all *bool
		err = withMigrator("migrate down", subargs, func(fs *flag.FlagSet) {
			all = fs.Bool("all", false, "Rollback all migrations")
		}, func(ctx context.Context, cli *migration.CLI) error {
			if *all {
				return cli.RunDownAll(ctx)
			}
			return cli.RunDown(ctx)
		})
	case "status":
		err = withMigrator("migrate status", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunStatus(ctx)
		})
	case "version":
		err = withMigrator("migrate version", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunVersion(ctx)
		})
	case "info":
		err = withMigrator("migrate info", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunInfo(ctx)
		})
	case "steps":
		n, rest := versionArg(subcommand, subargs, 32, true)
		err = withMigrator("migrate steps", rest, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunSteps(ctx, int(n))
		})
	case "goto":
		version, rest := versionArg(subcommand, subargs, 32, false)
		err = withMigrator("migrate goto", rest, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunGoto(ctx, uint(version))
		})
	case "force":
		version, rest := versionArg(subcommand, subargs, 32, true)
		err = withMigrator("migrate force", rest, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunForce(ctx, int(version))
		})
	case "reset":
		err = withMigrator("migrate reset", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunReset(ctx)
		})
	case "help", "-h", "--help":
		printMigrateUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", subcommand, err)
		os.Exit(1)
	}
}

// printMigrateUsage 打印 migrate 命令用法
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  teddyvoice migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all for every migration)
  status    Show migration status
  version   Show current migration version
  info      Show migration summary
  steps     Apply (n > 0) or roll back (n < 0) n migrations
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations and re-apply them
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  teddyvoice migrate up
  teddyvoice migrate up --config /etc/teddyvoice/config.yaml
  teddyvoice migrate up --db-type sqlite --db-url sqlite3://teddyvoice.db
  teddyvoice migrate down
  teddyvoice migrate status
  teddyvoice migrate steps -1
  teddyvoice migrate goto 1
  teddyvoice migrate force 0
  teddyvoice migrate reset`)
}

// versionArg 解析子命令的第一个位置参数为版本号或步数，返回其余参数
func versionArg(subcommand string, args []string, bits int, signed bool) (int64, []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: teddyvoice migrate %s <number>\n", subcommand)
		os.Exit(1)
	}

	var (
		v   int64
		err error
	)
	if signed {
		v, err = strconv.ParseInt(args[0], 10, bits)
	} else {
		var u uint64
		u, err = strconv.ParseUint(args[0], 10, bits)
		v = int64(u)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid number: %s\n", args[0])
		os.Exit(1)
	}
	return v, args[1:]
}

// withMigrator 解析公共参数、创建迁移器并执行 run，结束后关闭迁移器。
// extra 用于注册子命令特有的参数。
func withMigrator(name string, args []string, extra func(*flag.FlagSet), run func(context.Context, *migration.CLI) error) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	if extra != nil {
		extra(fs)
	}
	migrator, err := createMigrator(fs, args)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	return run(context.Background(), migration.NewCLI(migrator))
}

// createMigrator 按命令行参数创建迁移器；--db-type 与 --db-url 同时给出时不读取配置文件
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL, logger)
	}

	loader := config.NewLoader().WithStrictFields()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	return migration.NewMigratorFromConfig(cfg, logger)
}
