package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/orgcopilot/orgcopilot/internal/broadcast"
	"github.com/orgcopilot/orgcopilot/internal/conversation"
)

// MCPDeps holds dependencies for the MCP server. It reuses the same core
// components as the HTTP layer; both surfaces go through the owning
// pipeline and workflow.
type MCPDeps struct {
	Pipeline *conversation.Pipeline
	Workflow *broadcast.Workflow
}

// NewMCPServer creates an MCP server exposing the conversation and
// broadcast operations as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"orgcopilot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("orgcopilot — conversational front-end for the campus agent network, with human-in-the-loop broadcast approval."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Send a free-text question through the agent pipeline and return the resolved answer."),
			mcp.WithString("text", mcp.Description("The question or request"), mcp.Required()),
			mcp.WithString("role", mcp.Description("Caller role: student, faculty, admin, or principal (default student)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("compose_broadcast",
			mcp.WithDescription("Ask the composition agent to draft a broadcast from free text. The draft waits for approval."),
			mcp.WithString("text", mcp.Description("What the broadcast should say"), mcp.Required()),
			mcp.WithString("role", mcp.Description("Caller role (default student)")),
		),
		mcpComposeBroadcast(deps),
	)

	s.AddTool(
		mcp.NewTool("approve_broadcast",
			mcp.WithDescription("Approve a pending draft and deliver it. Only drafts in the draft state can be approved."),
			mcp.WithString("id", mcp.Description("Draft id"), mcp.Required()),
			mcp.WithString("role", mcp.Description("Caller role (default student)")),
		),
		mcpApproveBroadcast(deps),
	)

	s.AddTool(
		mcp.NewTool("reject_broadcast",
			mcp.WithDescription("Reject a pending draft, removing it entirely."),
			mcp.WithString("id", mcp.Description("Draft id"), mcp.Required()),
		),
		mcpRejectBroadcast(deps),
	)

	s.AddTool(
		mcp.NewTool("list_broadcasts",
			mcp.WithDescription("List broadcasts in creation order, optionally filtered by status."),
			mcp.WithString("status", mcp.Description("Filter: draft, approved, sent, or failed")),
		),
		mcpListBroadcasts(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"conversation://history",
			"Conversation History",
			mcp.WithResourceDescription("All turns of the current session in order"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		userID, err := resolveUserID(req.GetString("role", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		turn, err := deps.Pipeline.Submit(ctx, text, userID)
		if errors.Is(err, conversation.ErrTurnInFlight) {
			return mcpError("a previous turn is still being processed"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(turn)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal turn: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpComposeBroadcast(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		userID, err := resolveUserID(req.GetString("role", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		draft, err := deps.Workflow.Compose(ctx, text, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("compose failed (resubmit the same text to retry): %v", err)), nil
		}

		b, err := json.Marshal(draft)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal draft: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpApproveBroadcast(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		userID, err := resolveUserID(req.GetString("role", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		draft, err := deps.Workflow.Approve(ctx, id, userID)
		if errors.Is(err, broadcast.ErrNotFound) {
			return mcpError("broadcast not found"), nil
		}
		if errors.Is(err, broadcast.ErrInvalidTransition) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("send failed, draft %s is now %s: %v", draft.ID, draft.Status, err)), nil
		}

		deps.Pipeline.AppendNotice(sentNoticeText, draft.DeliveryRaw)

		b, err := json.Marshal(draft)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal draft: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRejectBroadcast(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		err = deps.Workflow.Reject(id)
		if errors.Is(err, broadcast.ErrNotFound) {
			return mcpError("broadcast not found"), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Rejected broadcast %s", id)), nil
	}
}

func mcpListBroadcasts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := broadcast.Status(req.GetString("status", ""))
		drafts := deps.Workflow.List(status)
		if drafts == nil {
			drafts = []broadcast.Draft{}
		}

		b, err := json.Marshal(drafts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal broadcasts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		turns := deps.Pipeline.History(0)
		if turns == nil {
			turns = []conversation.Turn{}
		}

		b, err := json.Marshal(turns)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
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
