package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/snipvault/internal/vault"
)

const (
	// ServerName is the MCP server name
	ServerName = "snipvault"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	vault  *vault.Vault
	logger *slog.Logger
}

// NewServer creates a new MCP server instance over v
func NewServer(v *vault.Vault, logger *slog.Logger) (*Server, error) {
	if v == nil {
		return nil, fmt.Errorf("vault is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:    mcpServer,
		vault:  v,
		logger: logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve runs the MCP server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	// Snippets
	s.mcp.AddTool(createSnippetTool(), s.handleCreateSnippet)
	s.mcp.AddTool(updateSnippetTool(), s.handleUpdateSnippet)
	s.mcp.AddTool(deleteSnippetTool(), s.handleDeleteSnippet)
	s.mcp.AddTool(getSnippetTool(), s.handleGetSnippet)
	s.mcp.AddTool(listSnippetsTool(), s.handleListSnippets)

	// Search
	s.mcp.AddTool(searchSnippetsTool(), s.handleSearchSnippets)

	// Model lifecycle
	s.mcp.AddTool(loadModelTool(), s.handleLoadModel)
	s.mcp.AddTool(unloadModelTool(), s.handleUnloadModel)
	s.mcp.AddTool(downloadModelTool(), s.handleDownloadModel)
	s.mcp.AddTool(modelStatusTool(), s.handleModelStatus)
	s.mcp.AddTool(regenerateEmbeddingsTool(), s.handleRegenerateEmbeddings)

	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)

	return nil
}
