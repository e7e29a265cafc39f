// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/server"
)

// shutdownTimeout bounds the wait for open streams after a signal.
const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen, backend string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy in front of the document backend",
		Long: `Run the HTTP proxy that front ends talk to.

  POST /api/query    relay a question and stream the answer back
  POST /api/upload   relay documents to the backend
  GET  /health       proxy status (add ?probe=1 to check the backend)`,
		Example: `  $ docchat serve
  $ docchat serve --listen :8080 --backend http://rag.internal:8000/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			if backend != "" {
				a.cfg.Backend.URL = backend
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ln, err := net.Listen("tcp", a.cfg.Server.Listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", a.cfg.Server.Listen, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "%s proxy on http://%s -> %s\n",
				successStyle.Render("Serving"), ln.Addr(), a.cfg.Backend.URL)
			return runServer(ctx, a, ln)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().StringVar(&backend, "backend", "", "backend base URL (overrides backend.url)")
	return cmd
}

// runServer serves on ln until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, a *app, ln net.Listener) error {
	srv, err := server.New(a.cfg)
	if err != nil {
		ln.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		slog.Warn("SERVER_SHUTDOWN_TIMEOUT", "timeout", shutdownTimeout)
	}

	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
		return nil
	}
}
