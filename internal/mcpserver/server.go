// Package mcpserver exposes the catalog as a Model Context Protocol server.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/atlastools/internal/catalog"
)

const instructions = "Jira and Confluence tools. Inputs are validated against each tool's schema; " +
	"results are JSON envelopes with execution_success and tool_result."

// New returns an MCP server with one tool per catalog entry.
func New(cat *catalog.Catalog, version string, log zerolog.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "atlastools", Version: version}, &mcp.ServerOptions{
		Instructions: instructions,
	})
	log = log.With().Str("component", "mcp").Logger()

	for _, d := range cat.Registry().Discover("") {
		srv.AddTool(&mcp.Tool{
			Name:        d.Name(),
			Description: d.Description(),
			InputSchema: d.InputSchema(),
			Annotations: annotations(d.Name()),
		}, handler(cat, d.Name(), log))
	}
	return srv
}

// Serve runs the server over stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, cat *catalog.Catalog, version string, log zerolog.Logger) error {
	log.Info().Str("component", "mcp").Int("tools", cat.Registry().Len()).Msg("serving over stdio")
	return New(cat, version, log).Run(ctx, &mcp.StdioTransport{})
}

func handler(cat *catalog.Catalog, name string, log zerolog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &input); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}

		exec := cat.ExecuteTool(ctx, name, input)
		text, err := json.Marshal(exec)
		if err != nil {
			log.Error().Err(err).Str("tool", name).Msg("encode execution")
			return errorResult(err.Error()), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
			IsError: !exec.Succeeded(),
		}, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// annotations derives behaviour hints from the tool naming scheme.
func annotations(name string) *mcp.ToolAnnotations {
	readOnly := strings.Contains(name, "_get_") || strings.HasSuffix(name, "_search")
	destructive := strings.Contains(name, "_delete_")
	openWorld := true
	return &mcp.ToolAnnotations{
		ReadOnlyHint:    readOnly,
		DestructiveHint: &destructive,
		IdempotentHint:  readOnly || destructive,
		OpenWorldHint:   &openWorld,
	}
}
