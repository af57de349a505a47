package mcp

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deixis/procout/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a proc_run result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout (default) or stderr"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	stream := params.Stream
	if stream == "" {
		stream = report.StreamStdout
	}

	run, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	data, err := run.Stream(stream)
	if err != nil {
		return errorResult(err.Error())
	}

	return textResult(formatInspectOutput(run, stream, data))
}

func formatInspectOutput(run *report.Run, stream string, data []byte) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", run.ID, run.Command)
	fmt.Fprintf(&b, "%s: %d bytes", stream, len(data))
	if run.Truncated {
		b.WriteString(", truncated")
	}
	if !utf8.Valid(data) {
		b.WriteString(", invalid utf-8 replaced")
	}
	b.WriteString("\n\n")
	b.WriteString(strings.ToValidUTF8(string(data), string(utf8.RuneError)))
	return b.String()
}
