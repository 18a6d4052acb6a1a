package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var notFound contentstore.NotFoundError
	var partial *settlement.PartialSettlementError

	switch {
	case errors.As(err, &partial):
		return fiber.StatusBadGateway

	case errors.Is(err, escrow.ErrInvalidAddress),
		errors.Is(err, escrow.ErrInvalidPrice),
		errors.Is(err, escrow.ErrInvalidOrderID),
		errors.Is(err, escrow.ErrUnknownStatus),
		errors.Is(err, contentstore.ErrMalformedContentID),
		errors.Is(err, agent.ErrMalformedCommand):
		return fiber.StatusBadRequest

	case errors.Is(err, escrow.ErrOrderNotFound), errors.As(err, &notFound):
		return fiber.StatusNotFound

	case errors.Is(err, escrow.ErrNotAuthorized):
		return fiber.StatusForbidden

	case errors.Is(err, escrow.ErrOrderNotFinalizable),
		errors.Is(err, escrow.ErrOrderNotCancellable),
		errors.Is(err, escrow.ErrInvalidTransition),
		errors.Is(err, escrow.ErrTransactionReverted):
		return fiber.StatusConflict

	case errors.Is(err, settlement.ErrRemoteAgentTimeout):
		return fiber.StatusGatewayTimeout

	case errors.Is(err, escrow.ErrLedgerUnavailable),
		errors.Is(err, contentstore.ErrStorageUnavailable),
		errors.Is(err, settlement.ErrRemoteAgentUnavailable):
		return fiber.StatusServiceUnavailable

	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zapRequest(c, err)...)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}

func unavailable(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: what + " is not configured"})
}
