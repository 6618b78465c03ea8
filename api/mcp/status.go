package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reveriehq/reverie/pkg/engine"
)

var (
	memoryStatusToolName    = "memory_status"
	memoryStatusDescription = "Report the memory status of a chat: tier counts, the summarization boundary, checkpoint depth, vector fingerprint and running background tasks."
)

// MemoryStatusInput represents the input arguments for the memory_status tool.
type MemoryStatusInput struct {
	ChatID string `json:"chat_id" jsonschema:"the chat to report memory status for"`
}

// MemoryStatusOutput represents the structured output of a memory status report.
type MemoryStatusOutput struct {
	Status engine.Status `json:"status"`
}

// handleMemoryStatus processes a memory status request via MCP.
func (s *Server) handleMemoryStatus(ctx context.Context, _ *mcp.CallToolRequest, input MemoryStatusInput) (*mcp.CallToolResult, MemoryStatusOutput, error) {
	if input.ChatID == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "chat_id is required"},
			},
		}, MemoryStatusOutput{}, nil
	}

	status, err := s.config.Engine.Status(ctx, input.ChatID)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory status failed: %v", err)},
			},
		}, MemoryStatusOutput{}, nil
	}

	output := MemoryStatusOutput{Status: status}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, MemoryStatusOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
