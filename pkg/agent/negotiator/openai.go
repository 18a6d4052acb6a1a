// Package negotiator provides the model backends for the agent routers.
package negotiator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/papercomputeco/escrowd/pkg/agent"
)

const (
	defaultBaseURL   = "https://api.asi1.ai/v1"
	defaultModel     = "asi1-mini"
	defaultMaxTokens = 2048
)

// ErrNoChoices is returned when the model returns an empty completion.
var ErrNoChoices = errors.New("model returned no choices")

var (
	createProposeParams = json.RawMessage(`{
  "type": "object",
  "properties": {
    "desc": {"type": "string", "description": "detailed description of the order"},
    "price": {"type": "number", "description": "agreed price in tokens"}
  },
  "required": ["desc", "price"]
}`)

	consultMerchantParams = json.RawMessage(`{
  "type": "object",
  "properties": {
    "message": {"type": "string"}
  },
  "required": ["message"]
}`)
)

// customerTools are offered when NegotiationRequest.Tools is set.
var customerTools = []openai.Tool{
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        agent.ToolCreatePropose,
			Description: "Create an order proposal",
			Parameters:  createProposeParams,
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        agent.ToolConsultMerchant,
			Description: "Chat with the merchant agent",
			Parameters:  consultMerchantParams,
		},
	},
}

// OpenAIConfig configures an OpenAI-compatible negotiator.
type OpenAIConfig struct {
	BaseURL string
	Model   string

	// APIKey takes precedence over the OPENAI_API_KEY environment variable.
	APIKey string

	Logger *slog.Logger
}

// OpenAI negotiates through any OpenAI-compatible chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// HasCredentials reports whether an API key can be resolved for cfg.
func HasCredentials(cfg OpenAIConfig) bool {
	return resolveAPIKey(cfg.APIKey) != ""
}

// NewOpenAI returns an OpenAI negotiator.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := resolveAPIKey(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("no LLM API key configured, set llm.api_key or OPENAI_API_KEY")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = defaultBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

func resolveAPIKey(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv("OPENAI_API_KEY")
}

// Negotiate runs one chat completion.
func (o *OpenAI) Negotiate(ctx context.Context, req agent.NegotiationRequest) (agent.Decision, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, toChatMessage(m))
	}

	creq := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  msgs,
		MaxTokens: defaultMaxTokens,
	}
	if req.Tools {
		creq.Tools = customerTools
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return agent.Decision{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return agent.Decision{}, ErrNoChoices
	}

	msg := resp.Choices[0].Message
	o.logger.Debug("model replied", "model", o.model, "tool_calls", len(msg.ToolCalls))

	for _, call := range msg.ToolCalls {
		action, err := parseToolCall(call.Function.Name, call.Function.Arguments)
		if err != nil {
			return agent.Decision{}, err
		}
		return agent.Decision{Reply: msg.Content, Action: action}, nil
	}
	return agent.Decision{Reply: msg.Content}, nil
}

// toChatMessage maps router turns onto chat roles. Merchant replies are
// relayed as system notes since they carry no tool call id.
func toChatMessage(m agent.Message) openai.ChatCompletionMessage {
	switch m.Role {
	case agent.RoleAssistant:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
	case agent.RoleMerchant:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: "The merchant agent replied: " + m.Content}
	default:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}
	}
}

type toolArgs struct {
	Desc    string      `json:"desc"`
	Price   json.Number `json:"price"`
	Message string      `json:"message"`
}

func parseToolCall(name, arguments string) (*agent.Action, error) {
	var args toolArgs
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return nil, fmt.Errorf("decoding %s arguments: %w", name, err)
		}
	}

	switch name {
	case agent.ToolCreatePropose:
		return &agent.Action{Tool: name, Desc: args.Desc, Price: args.Price.String()}, nil
	case agent.ToolConsultMerchant:
		return &agent.Action{Tool: name, Message: args.Message}, nil
	default:
		return nil, fmt.Errorf("unknown tool call %q", name)
	}
}
