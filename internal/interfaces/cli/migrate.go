package cli

import (
	"github.com/spf13/cobra"

	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := bootstrap(opts)
				if err != nil {
					return err
				}
				return postgres.RunMigrations(cfg.Database, logger)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := bootstrap(opts)
				if err != nil {
					return err
				}
				return postgres.RollbackLast(cfg.Database, logger)
			},
		},
	)
	return cmd
}
