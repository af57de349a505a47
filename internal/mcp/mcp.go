// Package mcp provides the procout MCP server, registering the process
// tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/procout"
	"github.com/deixis/procout/internal/config"
	"github.com/deixis/procout/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	store report.Store

	mu     sync.Mutex // guards cfg and runner, replaced when roots arrive
	cfg    *config.Config
	runner *procout.Runner
}

// NewServer creates an MCP server with the procout tools registered.
// Uncaptured streams of r must not reach the transport; NewServer points
// them at io.Discard when r leaves them unset. r itself is not modified.
func NewServer(cfg *config.Config, r *procout.Runner, store report.Store) *mcp.Server {
	rr := *r
	if rr.Stdout == nil {
		rr.Stdout = io.Discard
	}
	if rr.Stderr == nil {
		rr.Stderr = io.Discard
	}
	if rr.Logger == nil {
		rr.Logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{cfg: cfg, runner: &rr, store: store}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "procout", Version: procout.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "proc_run",
		Description: `Run a process and return its exit status and captured output.

The command is "split" (whitespace-separated words) followed by "argv" (taken verbatim).
A non-zero exit is reported as an error unless ignore_exit=true, in which case the
status and output are returned. Results are stored for drill-down via proc_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "proc_inspect",
		Description: `Return the full stdout or stderr of a proc_run result.

Use the run_id from the proc_run output.`,
	}, h.inspectHandler)

	return s
}

// current returns the config and runner in use.
func (h *handler) current() (*config.Config, *procout.Runner) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg, h.runner
}

// updateWorkspaceFromRoots queries the client for MCP roots and, if a file
// root is returned, confines runs to it and reloads its configuration.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r := *h.runner
	r.Workspace = workspace
	r.MaxOutput = loaded.Config.MaxOutputBytes()
	h.runner = &r
	h.cfg = loaded.Config
	r.Logger.Info("workspace updated from roots", slog.String("workspace", workspace))
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
