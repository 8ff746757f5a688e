package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rohitkal/rubi/internal/queue"
	"github.com/rohitkal/rubi/internal/storage"
	"github.com/rohitkal/rubi/internal/vecindex"
)

// MCPSearcher abstracts semantic search for the MCP layer.
type MCPSearcher interface {
	SearchScored(ctx context.Context, query string, k int) ([]vecindex.ScoredDocument, error)
	Insert(ctx context.Context, text string) (int64, error)
}

// MCPTaskLog abstracts the task queue for the MCP layer.
type MCPTaskLog interface {
	LoadAll() ([]queue.Task, error)
	Append(t queue.Task) (queue.Task, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
	Index MCPSearcher
	Tasks MCPTaskLog
}

// NewMCPServer creates an MCP server exposing the assistant's memory and task
// queue as tools and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"rubi",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rubi — local personal assistant with a task queue and semantic memory."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("remember",
			mcp.WithDescription("Store a note in the task queue and index it for semantic recall."),
			mcp.WithString("text", mcp.Description("The text to remember"), mcp.Required()),
		),
		mcpRemember(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search stored notes and documents, returning the closest matches."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List queued tasks, optionally filtered by type (note, link, upload)."),
			mcp.WithString("type", mcp.Description("Task type filter")),
		),
		mcpListTasks(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"rubi://interactions/recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 recorded assistant interactions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpRemember(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		task, err := deps.Tasks.Append(queue.Task{
			Type:    queue.TypeNote,
			Content: text,
			Owner:   "mcp",
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue note: %v", err)), nil
		}

		if _, err := deps.Index.Insert(ctx, text); err != nil {
			return mcpError(fmt.Sprintf("note %d queued but indexing failed: %v", task.Seq, err)), nil
		}

		return mcpText(fmt.Sprintf("Remembered as task %d", task.Seq)), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		docs, err := deps.Index.SearchScored(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}

		if len(docs) == 0 {
			return mcpText("[]"), nil
		}

		type docResult struct {
			ID       int64   `json:"id"`
			Text     string  `json:"text"`
			Distance float32 `json:"distance"`
		}

		results := make([]docResult, len(docs))
		for i, d := range docs {
			results[i] = docResult{ID: d.ID, Text: d.Text, Distance: d.Distance}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpListTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		wanted := req.GetString("type", "")

		tasks, err := deps.Tasks.LoadAll()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load tasks: %v", err)), nil
		}

		filtered := []queue.Task{}
		for _, t := range tasks {
			if wanted == "" || t.Type == wanted {
				filtered = append(filtered, t)
			}
		}

		b, err := json.Marshal(filtered)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal tasks: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.GetRecentInteractions(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Caller    string `json:"caller"`
			Message   string `json:"message"`
			Action    string `json:"action"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			message := ix.Message
			if utf8.RuneCountInString(message) > 200 {
				runes := []rune(message)
				message = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Caller:    ix.Caller,
				Message:   message,
				Action:    ix.Action,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
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
