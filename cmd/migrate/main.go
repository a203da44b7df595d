package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/kdimtricp/skysight/internal/config"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/urfave/cli/v3"
)

func main() {
	var (
		cfg    config.Config
		status bool
	)

	cmd := &cli.Command{
		Name:  "migrate",
		Usage: "Apply or inspect SQL schema migrations",
		Flags: slices.Concat(
			config.LogFlags(&cfg),
			config.DatabaseFlags(&cfg),
			[]cli.Flag{
				&cli.BoolFlag{
					Name:        "status",
					Usage:       "Show migration status only",
					Destination: &status,
				},
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.Finalize(); err != nil {
				return err
			}
			logging.SetDefault(logging.New(cfg.LogLevel, os.Stderr))

			db, err := database.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if status {
				return printStatus(db, cfg.MigrationsPath)
			}

			fmt.Println("Running migrations...")
			if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
				return err
			}
			fmt.Println("Migrations completed successfully!")
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logging.Default().Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func printStatus(db *database.DB, migrationsPath string) error {
	migrator := database.NewMigrator(db.Conn(), db.Type())
	if !migrator.Enabled() {
		fmt.Printf("%s schema is created from the model; no SQL migrations to track\n", db.Type())
		return nil
	}

	if err := migrator.Initialize(); err != nil {
		return err
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		return err
	}

	fsys, err := database.MigrationsFS(migrationsPath)
	if err != nil {
		return err
	}
	migrations, err := database.LoadMigrations(fsys)
	if err != nil {
		return err
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, m := range migrations {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
	}
	return nil
}
