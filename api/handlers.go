package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/escrowd/pkg/agent"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleContract returns the escrow deployment summary.
func (s *Server) handleContract(c *fiber.Ctx) error {
	if s.config.Ledger == nil {
		return unavailable(c, "ledger")
	}
	info, err := s.config.Ledger.Info(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(info)
}

// bindMessages decodes a message batch and returns the validation failure,
// if any.
func bindMessages(c *fiber.Ctx, req *agent.MessagesRequest) string {
	if err := c.BodyParser(req); err != nil {
		return "invalid request body"
	}
	if len(req.Messages) == 0 {
		return "messages are required"
	}
	return ""
}

// handleCustomerMessages runs one customer negotiation batch.
func (s *Server) handleCustomerMessages(c *fiber.Ctx) error {
	if s.config.Customer == nil {
		return unavailable(c, "customer agent")
	}
	var req agent.MessagesRequest
	if msg := bindMessages(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	resp, err := s.config.Customer.Handle(c.UserContext(), req.Messages, req.MerchantID)
	if err != nil {
		return s.fail(c, err)
	}
	if resp.Type == agent.TypeOrder {
		s.logger.Info("order created", zap.Any("order", resp.Content))
	}
	return c.JSON(resp)
}

// handleMerchantMessages answers one merchant batch.
func (s *Server) handleMerchantMessages(c *fiber.Ctx) error {
	if s.config.Merchant == nil {
		return unavailable(c, "merchant agent")
	}
	var req agent.MessagesRequest
	if msg := bindMessages(c, &req); msg != "" {
		return badRequest(c, msg)
	}

	msgs := req.Messages
	if req.MerchantID != "" {
		msgs = append([]agent.Message{{Role: agent.RoleAgent, Content: "merchant_id:" + req.MerchantID}}, msgs...)
	}

	resp, err := s.config.Merchant.Handle(c.UserContext(), msgs)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}
