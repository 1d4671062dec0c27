package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/knowledge-assistant/internal/adapters/mcp"
	"github.com/kirillkom/knowledge-assistant/internal/bootstrap"
	"github.com/kirillkom/knowledge-assistant/internal/config"
	"github.com/kirillkom/knowledge-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the MCP stdio stream.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "mcp")
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	profile, ok := app.Profiles.Get(cfg.MCPAgent)
	if !ok {
		slog.Error("unknown_mcp_agent", "agent", cfg.MCPAgent)
		app.Close()
		os.Exit(1)
	}

	srv := mcpadapter.NewServer(app.Tools, profile, version)
	slog.Info("mcp_serving", "agent", profile.Name, "tools", srv.ToolNames())
	if err := srv.ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err.Error())
	}
}
