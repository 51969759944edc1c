package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/stricklysoft-identity/pkg/accounts"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the accounts schema",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		migrateCmd(opts, "up", "Apply every pending migration", func(_ *cobra.Command, m *accounts.Migrator) error {
			return m.Up()
		}),
		migrateCmd(opts, "down", "Roll back the most recent migration", func(_ *cobra.Command, m *accounts.Migrator) error {
			return m.Down()
		}),
		migrateCmd(opts, "version", "Print the applied schema version", func(cmd *cobra.Command, m *accounts.Migrator) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return err
		}),
	)
	return cmd
}

func migrateCmd(opts *rootOptions, use, short string, run func(*cobra.Command, *accounts.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadRuntime(opts.configPath)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			m, err := accounts.NewMigrator(cfg.Postgres.ConnectionString(), logger)
			if err != nil {
				logger.Error("identityd: failed to open migrator", "error", err)
				return err
			}
			defer func() {
				if err := m.Close(); err != nil {
					logger.Warn("identityd: failed to close migrator", "error", err)
				}
			}()

			if err := run(cmd, m); err != nil {
				logger.Error("identityd: migrate "+use+" failed", "error", err)
				return err
			}
			return nil
		},
	}
}
