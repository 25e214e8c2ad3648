package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/visionqa/vqa/internal/api"
	"github.com/visionqa/vqa/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session over a local HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return runServer(a)
		})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the session as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mcpSrv := api.NewMCPServer(api.MCPDeps{Session: a.session, Version: version})
			stdioSrv := server.NewStdioServer(mcpSrv)
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		})
	},
}

func apiToken(cfg config.Config) string {
	kr, err := config.OpenKeyring(cfg)
	if err != nil {
		slog.Warn("keyring unavailable", "error", err)
		kr = nil
	}
	tok, src, err := config.APIToken(kr)
	if err != nil {
		slog.Warn("api token not persisted", "error", err)
	}
	slog.Info("API bearer token available", "source", string(src))
	if src == config.TokenEphemeral || src == config.TokenGenerated {
		printStatus("Token", "%s", tok)
	}
	return tok
}

func runServer(a *app) error {
	fmt.Fprintf(os.Stderr, "vqa version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewHandler(api.Deps{
		Session: a.session,
		Token:   apiToken(a.cfg),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "vqa listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
