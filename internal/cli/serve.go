package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/livequiz/internal/server"
)

func newServeCmd(c *server.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			s, err := server.Init(*c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			go s.Start()

			select {
			case <-shutdown:
			case <-cmd.Context().Done():
			}

			slog.Info("cli: shutting down")
			s.Shutdown()
			return nil
		},
	}
}
