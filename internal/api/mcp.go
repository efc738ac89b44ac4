package api

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the settings store to MCP clients.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"prefsync",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prefsync — shared key-value settings store with backend-agnostic get/set."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_setting",
			mcp.WithDescription("Read a setting, falling back to a default when it was never written."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
			mcp.WithString("default", mcp.Description("Value returned when the key is unset")),
			mcp.WithBoolean("number", mcp.Description("Treat the default as a number")),
		),
		mcpGetSetting(deps),
	)

	s.AddTool(
		mcp.NewTool("set_setting",
			mcp.WithDescription("Write one setting value."),
			mcp.WithString("key", mcp.Description("Setting key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to store"), mcp.Required()),
			mcp.WithBoolean("number", mcp.Description("Store the value as a number")),
		),
		mcpSetSetting(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"prefsync://backend",
			"Storage Backend",
			mcp.WithResourceDescription("Which storage backend this process resolved to"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceBackend(deps),
	)

	return s
}

func mcpGetSetting(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		var def any = req.GetString("default", "")
		if req.GetBool("number", false) {
			n, convErr := parseNumber(req.GetString("default", "0"))
			if convErr != nil {
				return mcpError(fmt.Sprintf("default is not a number: %v", convErr)), nil
			}
			def = n
		}

		value, err := deps.Store.Get(ctx, key, def)
		if err != nil {
			return mcpError(fmt.Sprintf("reading %q: %v", key, err)), nil
		}
		return mcpText(fmt.Sprintf("%v", value)), nil
	}
}

func mcpSetSetting(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		raw, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		var value any = raw
		if req.GetBool("number", false) {
			n, convErr := parseNumber(raw)
			if convErr != nil {
				return mcpError(fmt.Sprintf("value is not a number: %v", convErr)), nil
			}
			value = n
		}

		if err := deps.Store.Set(ctx, map[string]any{key: value}); err != nil {
			return mcpError(fmt.Sprintf("writing %q: %v", key, err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %v", key, value)), nil
	}
}

func mcpResourceBackend(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "prefsync://backend",
				MIMEType: "text/plain",
				Text:     deps.Store.Backend().String(),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
