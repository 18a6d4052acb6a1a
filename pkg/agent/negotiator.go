package agent

import "context"

// Negotiation tools the customer model may call.
const (
	ToolCreatePropose   = "create_propose"
	ToolConsultMerchant = "consult_merchant"
)

// Action is a tool call chosen by the model.
type Action struct {
	Tool    string `json:"tool"`
	Desc    string `json:"desc,omitempty"`
	Price   string `json:"price,omitempty"`
	Message string `json:"message,omitempty"`
}

// Decision is one model turn: either a chat reply or an action.
type Decision struct {
	Reply  string
	Action *Action
}

// NegotiationRequest is one model call. Tools enables the customer tools.
type NegotiationRequest struct {
	System   string
	Messages []Message
	Tools    bool
}

// Negotiator is the LLM seam for both routers.
type Negotiator interface {
	Negotiate(ctx context.Context, req NegotiationRequest) (Decision, error)
}
