package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

// MerchantMessagesPath is the merchant agent's message endpoint.
const MerchantMessagesPath = "/merchant/messages"

const defaultClientTimeout = 10 * time.Second

// MessagesRequest is the body of both message endpoints.
type MessagesRequest struct {
	Messages   []Message `json:"messages"`
	MerchantID string    `json:"merchantId,omitempty"`
}

// rawResponse defers decoding the content until the type is known.
type rawResponse struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// MerchantClientConfig configures a MerchantClient.
type MerchantClientConfig struct {
	// Target is the merchant agent base URL, e.g. http://localhost:8090.
	Target string

	// Timeout caps each call. A shorter context deadline wins.
	Timeout time.Duration

	Logger *slog.Logger
}

// MerchantClient talks to a remote merchant agent over HTTP.
type MerchantClient struct {
	target  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMerchantClient returns a MerchantClient for cfg.Target.
func NewMerchantClient(cfg MerchantClientConfig) (*MerchantClient, error) {
	target := strings.TrimRight(strings.TrimSpace(cfg.Target), "/")
	if target == "" {
		return nil, errors.New("merchant agent target is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MerchantClient{target: target, timeout: timeout, logger: logger}, nil
}

func (c *MerchantClient) send(ctx context.Context, merchantID string, msgs ...Message) (*rawResponse, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, settlement.ErrRemoteAgentTimeout
		}
		timeout = min(timeout, remaining)
	}

	batch := append([]Message{{Role: RoleAgent, Content: merchantHintPrefix + merchantID}}, msgs...)

	a := fiber.Post(c.target + MerchantMessagesPath)
	a.JSON(MessagesRequest{Messages: batch})
	a.Timeout(timeout)
	if err := a.Parse(); err != nil {
		return nil, fmt.Errorf("%w: %w", settlement.ErrRemoteAgentUnavailable, err)
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("%w after %s", settlement.ErrRemoteAgentTimeout, timeout)
		}
		return nil, fmt.Errorf("%w: %w", settlement.ErrRemoteAgentUnavailable, err)
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", settlement.ErrRemoteAgentUnavailable, code, strings.TrimSpace(string(body)))
	}

	var resp rawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", settlement.ErrRemoteAgentUnavailable, err)
	}
	if resp.Type == TypeError {
		var msg string
		_ = json.Unmarshal(resp.Content, &msg)
		return nil, fmt.Errorf("%w: merchant agent %s: %s", settlement.ErrRemoteAgentUnavailable, merchantID, msg)
	}

	c.logger.Debug("merchant agent replied", "merchant_id", merchantID, "type", resp.Type)
	return &resp, nil
}

func decodeContent(resp *rawResponse, want string, v any) error {
	if resp.Type != want {
		return fmt.Errorf("%w: expected %s response, got %s", settlement.ErrRemoteAgentUnavailable, want, resp.Type)
	}
	if err := json.Unmarshal(resp.Content, v); err != nil {
		return fmt.Errorf("%w: decoding %s content: %w", settlement.ErrRemoteAgentUnavailable, want, err)
	}
	return nil
}

// QueryWallet implements settlement.WalletResolver.
func (c *MerchantClient) QueryWallet(ctx context.Context, merchantID string) (string, error) {
	resp, err := c.send(ctx, merchantID, Message{Role: RoleQueryWallet})
	if err != nil {
		return "", err
	}
	var wallet string
	if err := decodeContent(resp, TypeWallet, &wallet); err != nil {
		return "", err
	}
	return wallet, nil
}

// Menu returns the merchant's visible menu.
func (c *MerchantClient) Menu(ctx context.Context, merchantID string) ([]knowledge.MenuEntry, error) {
	resp, err := c.send(ctx, merchantID, Message{Role: RoleQueryMenu})
	if err != nil {
		return nil, err
	}
	var menu MenuContent
	if err := decodeContent(resp, TypeMenu, &menu); err != nil {
		return nil, err
	}
	return menu.Items, nil
}

// Chat sends one user message to the merchant agent.
func (c *MerchantClient) Chat(ctx context.Context, merchantID, text string) (string, error) {
	resp, err := c.send(ctx, merchantID, Message{Role: RoleUser, Content: text})
	if err != nil {
		return "", err
	}
	var reply string
	if err := decodeContent(resp, TypeChat, &reply); err != nil {
		return "", err
	}
	return reply, nil
}
