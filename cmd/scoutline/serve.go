package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scoutline-dev/scoutline/pkg/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run-control HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer engine.Close() //nolint:errcheck // exiting anyway

		srv := &http.Server{
			Addr:              listenAddr,
			Handler:           api.New(engine, newLogger()).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			fmt.Printf("listening on %s\n", listenAddr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
}
