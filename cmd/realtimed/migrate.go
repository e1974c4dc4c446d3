package main

import (
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/vicinityhq/realtime/internal/config"
	"github.com/vicinityhq/realtime/internal/migrations"
	pgmigrations "github.com/vicinityhq/realtime/internal/migrations/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending profile store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Read()
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}

			switch cfg.Database.Driver {
			case "sqlite":
				db, err := sql.Open("sqlite3", cfg.Database.Path)
				if err != nil {
					return fmt.Errorf("open sqlite: %w", err)
				}
				defer func() {
					_ = db.Close()
				}()
				if err := migrations.Apply(ctx, db); err != nil {
					return err
				}
			case "postgres":
				pool, err := pgxpool.New(ctx, cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				defer pool.Close()
				if err := pgmigrations.Apply(ctx, pool); err != nil {
					return err
				}
			default:
				return fmt.Errorf("driver %q has no migrations", cfg.Database.Driver)
			}

			fmt.Println("Migrations applied successfully")
			return nil
		},
	}
}
