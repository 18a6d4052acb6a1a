// Package api provides the HTTP API for the customer and merchant agents,
// merchant discovery, stored order descriptions, and the escrow ledger.
package api

import (
	"net/http"

	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/search"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

// Config is the API server configuration. Every component but ListenAddr
// is optional; routes whose component is missing answer 503.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	Customer    *agent.CustomerRouter
	Merchant    *agent.MerchantRouter
	Registry    *knowledge.Registry
	Index       *search.Index
	Content     *contentstore.Store
	Ledger      *escrow.Client
	Coordinator *settlement.Coordinator

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}
