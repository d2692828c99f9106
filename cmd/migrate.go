package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/database"
)

func migrateCommand(options func() bootstrap.Options) *cobra.Command {
	withMigrator := func(fn func(*database.Migrator) error) error {
		cfg, log, err := bootstrap.LoadConfig(options())
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		m, err := database.NewMigrator(cfg.Database.DSN(), cfg.Database.MigrationsPath, log)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		return fn(m)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withMigrator((*database.Migrator).Up)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withMigrator(func(m *database.Migrator) error { return m.Down(steps) })
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withMigrator(func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				c.Printf("schema version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})
	return cmd
}
