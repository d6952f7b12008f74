package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/server"
)

// Execute runs the livequiz command line.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		configPath = os.Getenv("CONFIG_PATH")
		c          = server.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:           "livequiz",
		Short:         "Live multiplayer quiz server",
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := config.Load(configPath, &c); err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			setupLogger(c.Log.Level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", configPath, "path to the YAML config, defaults to $CONFIG_PATH")
	cmd.AddCommand(newServeCmd(&c))
	cmd.AddCommand(newMigrateCmd(&c))
	cmd.AddCommand(newImportCmd(&c))
	return cmd
}

func setupLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}
