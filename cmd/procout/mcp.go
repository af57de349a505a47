package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/deixis/procout"
	"github.com/deixis/procout/internal/config"
	pomcp "github.com/deixis/procout/internal/mcp"
	"github.com/deixis/procout/internal/report"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var (
	mcpHTTPAddr     string
	mcpInstructions bool
	mcpRunsDir      string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start a Model Context Protocol server exposing the proc_run and
proc_inspect tools. It speaks over stdio unless --http is given.

Runs are confined to the current directory, or to serve.workspace from
.procout, and replaced by the client's first root when it lists one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if mcpInstructions {
			fmt.Fprint(cmd.OutOrStdout(), pomcp.Instructions)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, mcpHTTPAddr)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	mcpCmd.Flags().BoolVar(&mcpInstructions, "instructions", false, "print model instructions and exit")
	mcpCmd.Flags().StringVar(&mcpRunsDir, "runs-dir", "", "directory for stored runs (default: a temp directory)")
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	if cfg.Serve.Workspace != "" {
		workspace = cfg.Serve.Workspace
	}

	// stdout carries the protocol in stdio mode; logs go to stderr.
	logger := newLogger(os.Stderr)

	store := report.NewLRUStore(cfg.StoreSize(), report.NewDiskStore(mcpRunsDir))
	r := &procout.Runner{
		Workspace: workspace,
		MaxOutput: cfg.MaxOutputBytes(),
		Logger:    logger,
	}

	server := pomcp.NewServer(cfg, r, store)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *slog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
