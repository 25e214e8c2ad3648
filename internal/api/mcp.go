package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/visionqa/vqa/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session *session.Orchestrator
	Version string
}

// NewMCPServer creates an MCP server exposing the session's chat, summary,
// API details and BDD operations.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"vqa",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vqa: ask questions about an onboarded project, extract its API surface, then generate and run BDD test suites."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask a question against the onboarded project's knowledge base. The conversation thread is kept between calls."),
			mcp.WithString("message", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("project_summary",
			mcp.WithDescription("Return the sectioned project summary, fetching it on first use."),
			mcp.WithBoolean("refresh", mcp.Description("Drop the cached summary and fetch a new one")),
		),
		mcpProjectSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("api_details",
			mcp.WithDescription("Return the API base URL and endpoint list, extracting them on first use."),
			mcp.WithBoolean("refresh", mcp.Description("Drop the cached details and extract them again")),
		),
		mcpAPIDetails(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_bdd",
			mcp.WithDescription("Generate a BDD scenario suite from the saved API details."),
		),
		mcpGenerateBDD(deps),
	)

	s.AddTool(
		mcp.NewTool("run_bdd",
			mcp.WithDescription("Execute the generated BDD suite and return the report URL."),
		),
		mcpRunBDD(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"vqa://session",
			"Session State",
			mcp.WithResourceDescription("Every persisted session entry as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSession(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"vqa://chat",
			"Chat History",
			mcp.WithResourceDescription("Question and answer turns of the current chat"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceChat(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		turn, ok, err := deps.Session.Chat.Send(ctx, message)
		if !ok {
			return mcpError("message is required"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("%s (%v)", turn.Answer, err)), nil
		}
		if turn.Superseded {
			return mcpError("response discarded: the chat was reset"), nil
		}
		return mcpText(turn.Answer), nil
	}
}

func mcpProjectSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := deps.Session.Pipeline
		if req.GetBool("refresh", false) {
			if err := p.ClearSummary(); err != nil {
				return mcpError(fmt.Sprintf("failed to clear summary: %v", err)), nil
			}
		}

		summary, err := p.Summary(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("summary failed: %v", err)), nil
		}

		var b strings.Builder
		for i, sec := range summary.Sections() {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "## %s\n%s", strings.TrimSuffix(sec.Title, ":"), sec.Body)
		}
		return mcpText(b.String()), nil
	}
}

func mcpAPIDetails(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := deps.Session.Pipeline
		if req.GetBool("refresh", false) {
			if err := p.ClearAPIDetails(); err != nil {
				return mcpError(fmt.Sprintf("failed to clear api details: %v", err)), nil
			}
		}

		details, err := p.APIDetails(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("api details failed: %v", err)), nil
		}

		b, err := json.Marshal(details)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal api details: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGenerateBDD(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		suite, err := deps.Session.Pipeline.GenerateBDD(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("bdd generation failed: %v", err)), nil
		}
		return mcpText(strings.Join(suite, "\n\n")), nil
	}
}

func mcpRunBDD(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rep, err := deps.Session.Pipeline.RunBDD(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("bdd run failed: %v", err)), nil
		}
		return mcpText(rep.URL), nil
	}
}

func mcpResourceSession(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Session.Export()
		if err != nil {
			return nil, fmt.Errorf("failed to export session: %w", err)
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceChat(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Session.Chat.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chat history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
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
