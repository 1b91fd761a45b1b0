package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/b24/internal/constants"
	"github.com/fivetwenty-io/b24/internal/server"
)

// NewServeCommand creates the serve command. It runs an HTTP JSON API over
// the repositories until interrupted.
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repositories over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			logger := newLogger()
			srv := server.New(logger, client)

			errCh := make(chan error, 1)

			go func() {
				errCh <- srv.Start(addr)
			}()

			logger.Info("server listening", "addr", addr)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				logger.Info("shutting down", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
			defer cancel()

			err = srv.Shutdown(shutdownCtx)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", constants.DefaultServerAddr, "listen address")

	return cmd
}
