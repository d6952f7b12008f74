package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/server"
	"github.com/victornm/livequiz/internal/store/postgres"
)

func newMigrateCmd(c *server.Config) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dsn := c.PostgresDSN()

			if rollback {
				if err := postgres.Rollback(ctx, dsn); err != nil {
					return fmt.Errorf("rollback: %w", err)
				}

				slog.InfoContext(ctx, "cli: last migration group rolled back")
				return nil
			}

			if err := postgres.Migrate(ctx, dsn); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			slog.InfoContext(ctx, "cli: migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group instead")
	return cmd
}
