package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/search"
)

var (
	getMenuToolName    = "get_menu"
	getMenuDescription = "List the visible menu of a merchant with display names and prices."

	merchantProfileToolName    = "merchant_profile"
	merchantProfileDescription = "Return everything known about a merchant: menu, wallet, description, hours, location, and categories."

	searchMerchantsToolName    = "search_merchants"
	searchMerchantsDescription = "Find merchants whose items, description, or location match the query text. Results are ranked by keyword overlap."

	getOrderToolName    = "get_order"
	getOrderDescription = "Read the on-chain state of an escrow order by its id."
)

// MerchantInput selects one merchant.
type MerchantInput struct {
	MerchantID string `json:"merchant_id" jsonschema:"the merchant id"`
}

// MenuOutput is the output of get_menu.
type MenuOutput struct {
	MerchantID string                `json:"merchant_id"`
	Items      []knowledge.MenuEntry `json:"items"`
}

// ProfileOutput is the output of merchant_profile.
type ProfileOutput struct {
	Profile knowledge.Profile `json:"profile"`
}

// SearchInput represents the input arguments for search_merchants.
type SearchInput struct {
	Query string `json:"query" jsonschema:"words describing what the customer wants"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of merchants to return (default: 5)"`
}

// SearchOutput represents the output of search_merchants.
type SearchOutput struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// toolError reports a failed call to the model rather than the transport.
func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// structured returns out both as structured content and as serialized JSON
// in a text block for clients that only read text.
func structured[T any](logger *zap.Logger, out T) (*mcp.CallToolResult, T, error) {
	data, err := json.Marshal(out)
	if err != nil {
		logger.Error("failed to marshal tool output", zap.Error(err))
		var zero T
		return toolError("Failed to serialize results: %v", err), zero, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, out, nil
}

func (s *Server) handleGetMenu(ctx context.Context, _ *mcp.CallToolRequest, input MerchantInput) (*mcp.CallToolResult, MenuOutput, error) {
	if input.MerchantID == "" {
		return toolError("merchant_id is required"), MenuOutput{}, nil
	}

	menu, err := s.config.Registry.Menu(ctx, input.MerchantID)
	if err != nil {
		s.config.Logger.Error("failed to read menu", zap.String("merchant_id", input.MerchantID), zap.Error(err))
		return toolError("Failed to read menu: %v", err), MenuOutput{}, nil
	}
	if menu == nil {
		menu = []knowledge.MenuEntry{}
	}
	return structured(s.config.Logger, MenuOutput{MerchantID: input.MerchantID, Items: menu})
}

func (s *Server) handleMerchantProfile(ctx context.Context, _ *mcp.CallToolRequest, input MerchantInput) (*mcp.CallToolResult, ProfileOutput, error) {
	if input.MerchantID == "" {
		return toolError("merchant_id is required"), ProfileOutput{}, nil
	}

	profile, err := s.config.Registry.Profile(ctx, input.MerchantID)
	if err != nil {
		s.config.Logger.Error("failed to read profile", zap.String("merchant_id", input.MerchantID), zap.Error(err))
		return toolError("Failed to read profile: %v", err), ProfileOutput{}, nil
	}
	if profile.Menu == nil {
		profile.Menu = []knowledge.MenuEntry{}
	}
	return structured(s.config.Logger, ProfileOutput{Profile: *profile})
}

func (s *Server) handleSearchMerchants(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	topK := input.TopK
	if topK <= 0 {
		topK = search.DefaultTopK
	}

	s.config.Logger.Debug("MCP merchant search",
		zap.String("query", input.Query),
		zap.Int("topK", topK),
	)

	results, err := s.config.Index.Search(ctx, input.Query, topK)
	if err != nil {
		s.config.Logger.Error("failed to search merchants", zap.Error(err))
		return toolError("Failed to search merchants: %v", err), SearchOutput{}, nil
	}
	if results == nil {
		results = []search.Result{}
	}

	return structured(s.config.Logger, SearchOutput{Query: input.Query, Results: results, Count: len(results)})
}
