package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

func newMigrateCmd(configDir *string) *cobra.Command {
	var (
		dbURL          string
		migrationsPath string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the actions table migrations",
	}
	cmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database URL (defaults to DATABASE_URL, then the database config section)")
	cmd.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "path to migrations directory")

	run := func(cmd *cobra.Command, direction string, steps int) error {
		dsn, err := resolveDSN(*configDir, dbURL)
		if err != nil {
			return err
		}

		m, err := migrate.New("file://"+migrationsPath, dsn)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer m.Close()

		switch {
		case direction == "up" && steps > 0:
			err = m.Steps(steps)
		case direction == "up":
			err = m.Up()
		case steps > 0:
			err = m.Steps(-steps)
		default:
			err = m.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration %s failed: %w", direction, err)
		}

		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("read migration version: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migration %s complete (version: %d, dirty: %v)\n", direction, v, dirty)
		return nil
	}

	for _, direction := range []string{"up", "down"} {
		var steps int
		sub := &cobra.Command{
			Use:   direction,
			Short: "Migrate " + direction,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, cmd.Name(), steps)
			},
		}
		sub.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
		cmd.AddCommand(sub)
	}
	return cmd
}

func resolveDSN(configDir, flagURL string) (string, error) {
	if flagURL != "" {
		return flagURL, nil
	}
	if env := os.Getenv("DATABASE_URL"); env != "" {
		return env, nil
	}
	cfg, _, err := loadConfig(configDir)
	if err != nil {
		return "", err
	}
	return cfg.Database.DSN(), nil
}
