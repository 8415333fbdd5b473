// File: internal/cli/migrate.go
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/migrations"
)

func newMigrateCmd(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(
		a.migrateSubcommand("up", "Apply all pending migrations", func(m *migrations.Manager) error { return m.Up() }),
		a.migrateSubcommand("down", "Roll back every migration", func(m *migrations.Manager) error { return m.Down() }),
		a.migrateSubcommand("version", "Print the current schema version", func(m *migrations.Manager) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "version=%d dirty=%t\n", version, dirty)
			return nil
		}),
	)
	return cmd
}

func (a *cliApp) migrateSubcommand(use, short string, fn func(*migrations.Manager) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Database.Driver != config.DatabaseDriverPostgres {
				return fmt.Errorf("migrations need database.driver=%s, got %q", config.DatabaseDriverPostgres, cfg.Database.Driver)
			}
			m, err := migrations.NewManager(cfg.Database.DSN(), log)
			if err != nil {
				return err
			}
			return errors.Join(fn(m), m.Close())
		},
	}
}
