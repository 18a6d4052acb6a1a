package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

// BuyerRequest names the buyer for confirm and cancel.
type BuyerRequest struct {
	Buyer string `json:"buyer"`
}

// AnswerRequest resumes settlement of an order left in progress.
type AnswerRequest struct {
	MerchantID string          `json:"merchant_id"`
	Price      decimal.Decimal `json:"price"`
}

// FinalizeResponse is the body of POST /orders/:id/finalize.
type FinalizeResponse struct {
	OrderID string      `json:"order_id"`
	TxHash  common.Hash `json:"tx_hash"`
}

// UserOrdersResponse is the body of GET /users/:address/orders.
type UserOrdersResponse struct {
	Address string                    `json:"address"`
	Orders  []escrow.OrderStatusEntry `json:"orders"`
	Count   int                       `json:"count"`
}

// handleGetOrder returns the on-chain state of an order.
func (s *Server) handleGetOrder(c *fiber.Ctx) error {
	if s.config.Ledger == nil {
		return unavailable(c, "ledger")
	}
	order, err := s.config.Ledger.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(order)
}

// handleConfirmOrder builds the buyer's payment transaction.
func (s *Server) handleConfirmOrder(c *fiber.Ctx) error {
	if s.config.Ledger == nil {
		return unavailable(c, "ledger")
	}
	var req BuyerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	tx, err := s.config.Ledger.BuildConfirm(c.UserContext(), c.Params("id"), req.Buyer)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(tx)
}

// handleCancelOrder builds the buyer's cancel transaction.
func (s *Server) handleCancelOrder(c *fiber.Ctx) error {
	if s.config.Ledger == nil {
		return unavailable(c, "ledger")
	}
	var req BuyerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	tx, err := s.config.Ledger.BuildCancel(c.UserContext(), c.Params("id"), req.Buyer)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(tx)
}

// handleFinalizeOrder releases a confirmed order's payment as the controller.
func (s *Server) handleFinalizeOrder(c *fiber.Ctx) error {
	if s.config.Ledger == nil {
		return unavailable(c, "ledger")
	}
	id := c.Params("id")
	hash, err := s.config.Ledger.Finalize(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}

	s.logger.Info("order finalized", zap.String("order_id", id), zap.String("tx", hash.Hex()))
	return c.JSON(FinalizeResponse{OrderID: id, TxHash: hash})
}

// handleAnswerOrder re-runs the answer and confirm steps for an order left
// in progress by a partial settlement.
func (s *Server) handleAnswerOrder(c *fiber.Ctx) error {
	if s.config.Coordinator == nil {
		return unavailable(c, "settlement coordinator")
	}
	var req AnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := s.config.Coordinator.ResumeAnswer(c.UserContext(), settlement.ResumeRequest{
		OrderID:    c.Params("id"),
		MerchantID: req.MerchantID,
		Price:      req.Price,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

// handleUserOrders lists a user's orders, optionally filtered by status.
func (s *Server) handleUserOrders(c *fiber.Ctx) error {
	if s.config.Ledger == nil {
		return unavailable(c, "ledger")
	}
	ctx := c.UserContext()
	address := c.Params("address")

	var orders []escrow.OrderStatusEntry
	if raw := c.Query("status"); raw != "" {
		status, err := escrow.ParseStatus(raw)
		if err != nil {
			return s.fail(c, err)
		}
		ids, err := s.config.Ledger.UserOrdersByStatus(ctx, address, status)
		if err != nil {
			return s.fail(c, err)
		}
		for _, id := range ids {
			orders = append(orders, escrow.OrderStatusEntry{OrderID: id, Status: status})
		}
	} else {
		all, err := s.config.Ledger.UserOrdersWithStatus(ctx, address)
		if err != nil {
			return s.fail(c, err)
		}
		orders = all
	}
	if orders == nil {
		orders = []escrow.OrderStatusEntry{}
	}

	return c.JSON(UserOrdersResponse{Address: address, Orders: orders, Count: len(orders)})
}
