// Package mcp provides an MCP (Model Context Protocol) server over the
// memory engine.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/engine"
	"github.com/reveriehq/reverie/pkg/utils"
)

type Config struct {
	// Engine is the shared memory engine
	Engine *engine.MemoryEngine

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "reverie",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Engine == nil {
		return nil, errors.New("memory engine is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memoryRecallToolName,
		Description: memoryRecallDescription,
	}, s.handleMemoryRecall)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memoryBuildToolName,
		Description: memoryBuildDescription,
	}, s.handleMemoryBuild)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        memoryStatusToolName,
		Description: memoryStatusDescription,
	}, s.handleMemoryStatus)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
