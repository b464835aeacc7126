package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gwlsn/clipper/internal/api"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			addr := svc.cfg.ListenAddr
			if listen != "" {
				addr = listen
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			go svc.formats.Detect(signalCtx)

			runner := svc.newRunner()
			handler := api.NewHandler(runner, svc.prober, svc.thumbnailer, svc.formats, svc.cfg, svc.logger)
			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				svc.logger.Info("listening", "addr", addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-signalCtx.Done():
			}

			svc.logger.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()

			// Event streams stay open until the server stops; stop the job first
			_ = runner.Cancel()
			if err := runner.Wait(shutdownCtx); err != nil {
				svc.logger.Warn("job did not stop in time", "error", err)
			}
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides listen_addr)")
	return cmd
}
