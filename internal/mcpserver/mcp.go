// Package mcpserver exposes conversation history and quota status as MCP
// tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/storage"
)

type Store interface {
	Get(ctx context.Context, id string) (estimate.Record, error)
	ListByOwner(ctx context.Context, ownerID string, req estimate.PageRequest) (estimate.Page, error)
}

type QuotaPeeker interface {
	Peek(ctx context.Context, ownerID string) quota.Status
}

type Deps struct {
	Store    Store
	Quota    QuotaPeeker
	Version  string
	PageSize int
}

func NewServer(deps Deps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"pitchspeak",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("pitchspeak: saved project estimates from voice conversations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_conversations",
			mcp.WithDescription("List an owner's saved project estimates, newest first."),
			mcp.WithString("owner_id", mcp.Description("Owner whose conversations to list"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Page size (default 10, max 100)")),
			mcp.WithString("cursor", mcp.Description("next_cursor from a previous page")),
		),
		listConversations(deps),
	)

	s.AddTool(
		mcp.NewTool("get_conversation",
			mcp.WithDescription("Fetch one of an owner's saved project estimates with its transcript."),
			mcp.WithString("id", mcp.Description("Conversation id (UUID)"), mcp.Required()),
			mcp.WithString("owner_id", mcp.Description("Owner the conversation belongs to"), mcp.Required()),
		),
		getConversation(deps),
	)

	s.AddTool(
		mcp.NewTool("quota_status",
			mcp.WithDescription("Show how many voice sessions an owner has left in the current window."),
			mcp.WithString("owner_id", mcp.Description("Owner to inspect"), mcp.Required()),
		),
		quotaStatus(deps),
	)

	return s
}

func listConversations(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("owner_id")
		if err != nil || owner == "" {
			return mcpError("owner_id is required"), nil
		}

		page, err := deps.Store.ListByOwner(ctx, owner, estimate.PageRequest{
			Cursor: req.GetString("cursor", ""),
			Limit:  req.GetInt("limit", deps.PageSize),
		})
		if errors.Is(err, storage.ErrInvalidCursor) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("list conversations: %v", err)), nil
		}
		return mcpJSON(page)
	}
}

func getConversation(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		owner, err := req.RequireString("owner_id")
		if err != nil || owner == "" {
			return mcpError("owner_id is required"), nil
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return mcpError("invalid conversation id"), nil
		}

		rec, err := deps.Store.Get(ctx, id.String())
		if errors.Is(err, estimate.ErrNotFound) {
			return mcpError("conversation not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("get conversation: %v", err)), nil
		}
		// Records without an owner predate owner tracking and stay readable.
		if rec.OwnerID != "" && rec.OwnerID != owner {
			return mcpError("conversation not found"), nil
		}
		return mcpJSON(rec)
	}
}

func quotaStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("owner_id")
		if err != nil || owner == "" {
			return mcpError("owner_id is required"), nil
		}
		return mcpJSON(deps.Quota.Peek(ctx, owner))
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcpText(string(b)), nil
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
