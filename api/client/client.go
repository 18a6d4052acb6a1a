// Package apiclient calls a running escrowd API server on behalf of CLI
// commands.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/papercomputeco/escrowd/api"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

const defaultTimeout = 30 * time.Second

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("escrowd API returned %d: %s", e.Status, e.Message)
}

// Client talks to one escrowd API server.
type Client struct {
	target  string
	timeout time.Duration
}

// New returns a Client for target, e.g. http://localhost:8090.
func New(target string, timeout time.Duration) (*Client, error) {
	target = strings.TrimRight(strings.TrimSpace(target), "/")
	if target == "" {
		return nil, errors.New("api target is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{target: target, timeout: timeout}, nil
}

// GetOrder fetches the on-chain state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*escrow.OrderDetails, error) {
	var out escrow.OrderDetails
	if err := c.do(ctx, fiber.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Confirm builds the buyer's payment transaction.
func (c *Client) Confirm(ctx context.Context, orderID, buyer string) (*escrow.UnsignedTransaction, error) {
	var out escrow.UnsignedTransaction
	body := api.BuyerRequest{Buyer: buyer}
	if err := c.do(ctx, fiber.MethodPost, "/orders/"+url.PathEscape(orderID)+"/confirm", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel builds the buyer's cancel transaction.
func (c *Client) Cancel(ctx context.Context, orderID, buyer string) (*escrow.UnsignedTransaction, error) {
	var out escrow.UnsignedTransaction
	body := api.BuyerRequest{Buyer: buyer}
	if err := c.do(ctx, fiber.MethodPost, "/orders/"+url.PathEscape(orderID)+"/cancel", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Finalize releases a confirmed order's payment to the seller.
func (c *Client) Finalize(ctx context.Context, orderID string) (*api.FinalizeResponse, error) {
	var out api.FinalizeResponse
	if err := c.do(ctx, fiber.MethodPost, "/orders/"+url.PathEscape(orderID)+"/finalize", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Answer resumes settlement of an order left in progress.
func (c *Client) Answer(ctx context.Context, orderID string, req api.AnswerRequest) (*settlement.Result, error) {
	var out settlement.Result
	if err := c.do(ctx, fiber.MethodPost, "/orders/"+url.PathEscape(orderID)+"/answer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserOrders lists a user's orders. An empty status lists all of them.
func (c *Client) UserOrders(ctx context.Context, address, status string) (*api.UserOrdersResponse, error) {
	path := "/users/" + url.PathEscape(address) + "/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out api.UserOrdersResponse
	if err := c.do(ctx, fiber.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return context.DeadlineExceeded
		}
		timeout = min(timeout, left)
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.target + path)
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("building request: %w", err)
	}

	status, data, errs := agent.Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		if errors.Is(err, fasthttp.ErrTimeout) {
			return fmt.Errorf("%s %s: %w", method, path, context.DeadlineExceeded)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if status < 200 || status >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Status: status, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
