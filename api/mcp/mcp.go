// Package mcp provides an MCP (Model Context Protocol) server exposing
// merchant discovery and order lookup to external agents.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/search"
	"github.com/papercomputeco/escrowd/pkg/utils"
)

type Config struct {
	// Registry answers menu and profile lookups
	Registry *knowledge.Registry

	// Index ranks merchants for search_merchants
	Index *search.Index

	// Ledger, when set, enables the get_order tool
	Ledger *escrow.Client

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

// NewServer creates a new MCP server with the merchant and order tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "escrowd",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Registry == nil {
			return nil, errors.New("knowledge registry is required")
		}
		if c.Index == nil {
			return nil, errors.New("search index is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        getMenuToolName,
			Description: getMenuDescription,
		}, s.handleGetMenu)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        merchantProfileToolName,
			Description: merchantProfileDescription,
		}, s.handleMerchantProfile)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchMerchantsToolName,
			Description: searchMerchantsDescription,
		}, s.handleSearchMerchants)

		if c.Ledger != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        getOrderToolName,
				Description: getOrderDescription,
			}, s.handleGetOrder)
		}
	}

	s.mcpServer = mcpServer

	// Stateless streamable HTTP handler
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

// MCPServer returns the underlying MCP server for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
