package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/polis-rag/internal/adapters/mcp"
	"github.com/kirillkom/polis-rag/internal/bootstrap"
	"github.com/kirillkom/polis-rag/internal/config"
	"github.com/kirillkom/polis-rag/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewSearchOnly(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(app.RetrieveUC, version)
	slog.Info("mcp_stdio_started", "tool", mcpadapter.SearchToolName)
	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
