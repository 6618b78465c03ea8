package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/recall"
	"github.com/reveriehq/reverie/pkg/utils"
)

var (
	memoryRecallToolName    = "memory_recall"
	memoryRecallDescription = "Recall ranked memory for a chat. Given a chat id and a query, returns direct and related events, causal chains, and residual evidence ranked against the query. Use this to inspect what the memory engine knows about a topic."
)

// MemoryRecallInput represents the input arguments for the memory_recall tool.
type MemoryRecallInput struct {
	ChatID   string   `json:"chat_id" jsonschema:"the chat to recall memory for"`
	Query    string   `json:"query" jsonschema:"the query text to rank memory against"`
	Entities []string `json:"entities,omitempty" jsonschema:"entity names to focus the recall on"`
}

// MemoryRecallOutput represents the structured output of a memory recall.
type MemoryRecallOutput struct {
	ChatID string        `json:"chat_id"`
	Result recall.Result `json:"result"`
}

// handleMemoryRecall processes a memory recall request via MCP.
func (s *Server) handleMemoryRecall(ctx context.Context, _ *mcp.CallToolRequest, input MemoryRecallInput) (*mcp.CallToolResult, MemoryRecallOutput, error) {
	if input.ChatID == "" || input.Query == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "chat_id and query are required"},
			},
		}, MemoryRecallOutput{}, nil
	}

	s.config.Logger.Debug("MCP memory recall request",
		zap.String("chat_id", input.ChatID),
		zap.String("query", utils.Truncate(input.Query, 80)),
	)

	result, err := s.config.Engine.Recall(ctx, input.ChatID, input.Query, recall.Focus{Entities: input.Entities})
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory recall failed: %v", err)},
			},
		}, MemoryRecallOutput{}, nil
	}

	output := MemoryRecallOutput{ChatID: input.ChatID, Result: result}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, MemoryRecallOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
