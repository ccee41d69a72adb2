package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainhist/chainhist/internal/api"
	"github.com/chainhist/chainhist/internal/health"
)

var flagListen string

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", ":8080", "HTTP listen address")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the history API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		checker := health.Checker{
			DBPing:  a.store.Ping,
			RPCPing: health.NewSourceChecker(a.pingers).Ping,
		}

		srv := api.New(flagListen, a.service, checker, a.log)
		a.log.Info("serving history api", "addr", flagListen)

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			a.log.Info("shutting down", "signal", sig.String())
		case <-cmd.Context().Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
