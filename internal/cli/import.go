package cli

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/server"
	"github.com/victornm/livequiz/internal/store/postgres"
)

func newImportCmd(c *server.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import <quiz.yaml>...",
		Short: "Import quiz sets from YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			reqs := make([]quiz.CreateQuizSetRequest, 0, len(args))
			for _, path := range args {
				req, err := quiz.LoadFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				reqs = append(reqs, req)
			}

			db, err := pgxpool.New(ctx, c.PostgresDSN())
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer db.Close()

			qs := quiz.NewService(quiz.Config{Store: postgres.New(db)})
			for i, req := range reqs {
				created, err := qs.CreateQuizSet(ctx, req)
				if err != nil {
					return fmt.Errorf("%s: %w", args[i], err)
				}

				slog.InfoContext(ctx, "cli: quiz set imported", "file", args[i], "id", created.QuizSetID, "questions", len(created.Questions))
				fmt.Fprintln(cmd.OutOrStdout(), created.QuizSetID)
			}

			return nil
		},
	}
}
