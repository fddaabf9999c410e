// Package main is the entrypoint for fde-host.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/desktop-embedding/internal/config"
	"github.com/morezero/desktop-embedding/internal/server"
	"github.com/morezero/desktop-embedding/pkg/db"
	"github.com/morezero/desktop-embedding/pkg/plugins/sharedprefs"
)

const usage = `Usage: fde-host [command]
       fde-host serve              Start the host (engine bridge, plugins, HTTP health).
       fde-host migrate up         Apply pending database migrations.
       fde-host migrate status     List pending database migrations.
       fde-host prefs clear        Delete stored shared preferences.

Commands:
  serve           (default) Start the host.
  migrate up      Apply migrations for the Postgres preference store.
  migrate status  Show which migrations have not been applied.
  prefs clear     Delete stored preferences with the flutter. key prefix; schema preserved.

Environment: COMMS_URL, FDE_TRANSPORT (comms|loopback), FDE_SUBJECT_PREFIX, FDE_CODEC,
FDE_INPUT_BLOCKING_CHANNELS, PREFERENCES_STORE (memory|postgres), DATABASE_URL, MIGRATION_PATH,
HTTP_PORT, LOG_LEVEL.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("fde-host: %v", err)
	}
}

// run executes the command in args, writing command output to out.
func run(args []string, out io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			return fmt.Errorf("migrate: require subcommand (up, status)")
		}
		switch args[1] {
		case "up":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return runMigrateUp(ctx, cfg, pool, out)
			})
		case "status":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return runMigrateStatus(ctx, cfg, pool, out)
			})
		default:
			return fmt.Errorf("migrate: unknown subcommand %q (use up, status)", args[1])
		}
	case "prefs":
		if len(args) < 2 || args[1] != "clear" {
			return fmt.Errorf("prefs: require subcommand (clear)")
		}
		return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
			n, err := db.NewPreferencesRepository(pool).ClearPreferences(ctx, sharedprefs.KeyPrefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Cleared %d preferences.\n", n)
			return nil
		})
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	case "serve", "":
		return server.Run()
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// withPool loads config, opens the database and calls fn.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	server.SetupLogging(cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, out io.Writer) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	applied, err := db.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Fprintf(out, "Applied %d migrations.\n", len(applied))
	for _, name := range applied {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, out io.Writer) error {
	pending, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintf(out, "Migration status: up to date (%s)\n", cfg.MigrationPath)
		return nil
	}
	fmt.Fprintf(out, "Migration status: %d pending (run 'fde-host migrate up')\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "  %s\n", m.Name)
	}
	return nil
}
