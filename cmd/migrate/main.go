package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/logging"
	"github.com/Rrens/codemuse/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the CodeMuse SQL schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if _, err := logging.Setup(loaded.Logging); err != nil {
				return err
			}
			switch loaded.Database.Driver {
			case config.DriverPostgres, config.DriverMySQL, config.DriverSQLite:
			default:
				return fmt.Errorf("driver %q has no SQL schema to migrate", loaded.Database.Driver)
			}
			cfg = loaded
			return nil
		},
	}

	open := func() (*migrate.Migrate, error) {
		return migrations.New(cfg.Database.Driver, cfg.Database.MigrateURL())
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := migrations.Up(cfg.Database.Driver, cfg.Database.MigrateURL())
			if err != nil {
				log.Error().Err(err).Msg("Migration failed")
			}
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				steps = n
			}

			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				log.Error().Err(err).Msg("Rollback failed")
				return err
			}
			log.Info().Int("steps", steps).Str("dialect", cfg.Database.Driver).Msg("Rolled back")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}

			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Force(version)
		},
	})

	return root
}
