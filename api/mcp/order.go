package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/escrowd/pkg/escrow"
)

// OrderInput selects one order.
type OrderInput struct {
	OrderID string `json:"order_id" jsonschema:"the decimal escrow order id"`
}

// OrderOutput is the output of get_order. Addresses, digests, and amounts
// are rendered as strings.
type OrderOutput struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller,omitempty"`
	Price        string `json:"price"`
	Paid         string `json:"paid"`
	PromptDigest string `json:"prompt_digest"`
	CreatedAt    string `json:"created_at"`
}

func orderOutput(o *escrow.OrderDetails) OrderOutput {
	out := OrderOutput{
		OrderID:      o.OrderID,
		Status:       o.Status.String(),
		Buyer:        o.Buyer.Hex(),
		Price:        o.Price.String(),
		Paid:         o.Paid.String(),
		PromptDigest: o.PromptDigest.Hex(),
		CreatedAt:    o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.HasSeller() {
		out.Seller = o.Seller.Hex()
	}
	return out
}

func (s *Server) handleGetOrder(ctx context.Context, _ *mcp.CallToolRequest, input OrderInput) (*mcp.CallToolResult, OrderOutput, error) {
	order, err := s.config.Ledger.GetOrder(ctx, input.OrderID)
	if err != nil {
		s.config.Logger.Warn("failed to read order", zap.String("order_id", input.OrderID), zap.Error(err))
		return toolError("Failed to read order %s: %v", input.OrderID, err), OrderOutput{}, nil
	}
	return structured(s.config.Logger, orderOutput(order))
}
