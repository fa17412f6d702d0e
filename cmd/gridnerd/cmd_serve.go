package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gridnerd/internal/logging"
	gridmcp "gridnerd/internal/mcp"
	"gridnerd/internal/server"

	"github.com/spf13/cobra"
)

var listenAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serves the JSON API until interrupted:

  POST /api/query       answer a question
  POST /api/autonomous  plan and execute a task
  POST /api/connect     (re)connect to the workbook
  POST /api/execute     execute one command
  GET  /api/health      service health`,
	RunE: serveHTTP,
}

// mcpCmd runs the MCP tool server on stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent as MCP tools over stdio",
	RunE:  serveMCP,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
}

// serverContext is cancelled on SIGINT/SIGTERM. Long-running servers ignore --timeout.
func serverContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
}

func serveHTTP(cmd *cobra.Command, args []string) error {
	ctx, cancel := serverContext(cmd)
	defer cancel()

	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	status := a.Connect(ctx)
	logging.Server("workbook: %s %s", status.State, status.Message)

	srvCfg := server.ConfigFrom(cfg)
	if listenAddr != "" {
		srvCfg.ListenAddr = listenAddr
	}
	return server.New(a, srvCfg).Start(ctx)
}

func serveMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := serverContext(cmd)
	defer cancel()

	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Connect(ctx)
	return gridmcp.NewServer(a, cfg.Version).ServeStdio()
}
