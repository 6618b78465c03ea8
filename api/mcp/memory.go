package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/recall"
	"github.com/reveriehq/reverie/pkg/utils"
)

var (
	memoryBuildToolName    = "memory_build"
	memoryBuildDescription = "Build the token-budgeted memory block for a chat. Given a chat id and the upcoming query, recalls and assembles constraints, events, evidence and arcs into a single text block ready for prompt injection."
)

// MemoryBuildInput represents the input arguments for the memory_build tool.
type MemoryBuildInput struct {
	ChatID   string   `json:"chat_id" jsonschema:"the chat to build memory for"`
	Query    string   `json:"query" jsonschema:"the upcoming query to build memory against"`
	Entities []string `json:"entities,omitempty" jsonschema:"entity names to focus the recall on"`
}

// MemoryBuildOutput represents the structured output of a memory build.
type MemoryBuildOutput struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
	Depth  int    `json:"depth"`
}

// handleMemoryBuild processes a memory build request via MCP.
func (s *Server) handleMemoryBuild(ctx context.Context, _ *mcp.CallToolRequest, input MemoryBuildInput) (*mcp.CallToolResult, MemoryBuildOutput, error) {
	if input.ChatID == "" || input.Query == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "chat_id and query are required"},
			},
		}, MemoryBuildOutput{}, nil
	}

	s.config.Logger.Debug("MCP memory build request",
		zap.String("chat_id", input.ChatID),
		zap.String("query", utils.Truncate(input.Query, 80)),
	)

	out, err := s.config.Engine.BuildMemory(ctx, input.ChatID, input.Query, recall.Focus{Entities: input.Entities})
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory build failed: %v", err)},
			},
		}, MemoryBuildOutput{}, nil
	}

	output := MemoryBuildOutput{
		ChatID: input.ChatID,
		Text:   out.Text,
		Depth:  out.Depth,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: out.Text},
		},
	}, output, nil
}
