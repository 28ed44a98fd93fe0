package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/skeletab/internal/mcpserver"
)

// RunMCP serves the MCP tools over stdin/stdout. Logs go to stderr so they
// do not corrupt the protocol stream.
func RunMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	c, err := wire(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("Starting MCP server", slog.String("project_root", c.svc.Root()))
	return mcpserver.New(c.svc).ServeStdio()
}
