package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

// RoleMerchant marks a merchant agent reply inside a negotiation.
const RoleMerchant = "merchant"

const defaultMaxRounds = 4

// ErrNegotiationStalled is returned when the model keeps consulting the
// merchant without replying or proposing.
var ErrNegotiationStalled = errors.New("negotiation did not settle")

const customerPrompt = `You are a sales agent working for the customer.
Help the customer describe what they need in detail and agree on a reasonable price.
Use consult_merchant to ask the merchant agent about availability and prices.
When the customer has confirmed the description and price, call create_propose.`

// OrderCreator settles a negotiated order. *settlement.Coordinator
// satisfies it.
type OrderCreator interface {
	CreateAndPriceOrder(ctx context.Context, req settlement.Request) (*settlement.Result, error)
}

// MerchantChannel reaches a merchant agent. *MerchantClient satisfies it.
type MerchantChannel interface {
	Menu(ctx context.Context, merchantID string) ([]knowledge.MenuEntry, error)
	Chat(ctx context.Context, merchantID, text string) (string, error)
}

// CustomerConfig configures a CustomerRouter.
type CustomerConfig struct {
	Orders     OrderCreator
	Negotiator Negotiator
	Merchant   MerchantChannel

	// DefaultMerchant is used when a batch names no merchant.
	DefaultMerchant string

	// MaxRounds bounds consult_merchant calls per batch. Defaults to 4.
	MaxRounds int

	Logger *slog.Logger
}

// CustomerRouter runs the customer negotiation loop.
type CustomerRouter struct {
	orders          OrderCreator
	negotiator      Negotiator
	merchant        MerchantChannel
	defaultMerchant string
	maxRounds       int
	logger          *slog.Logger
}

// NewCustomerRouter returns a CustomerRouter.
func NewCustomerRouter(cfg CustomerConfig) (*CustomerRouter, error) {
	if cfg.Negotiator == nil {
		return nil, errors.New("customer router requires a negotiator")
	}
	r := &CustomerRouter{
		orders:          cfg.Orders,
		negotiator:      cfg.Negotiator,
		merchant:        cfg.Merchant,
		defaultMerchant: cfg.DefaultMerchant,
		maxRounds:       cfg.MaxRounds,
		logger:          cfg.Logger,
	}
	if r.maxRounds <= 0 {
		r.maxRounds = defaultMaxRounds
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

// customerBatch is what the router extracts from one inbound batch.
type customerBatch struct {
	buyer      string
	seller     string
	merchantID string
	turns      []Message
}

func (r *CustomerRouter) parse(msgs []Message, merchantID string) customerBatch {
	b := customerBatch{merchantID: merchantID}
	for _, m := range msgs {
		if id, ok := merchantHint(m); ok {
			b.merchantID = id
			continue
		}
		switch m.Role {
		case RoleWallet:
			b.buyer = strings.TrimSpace(m.Content)
		case RoleMerchantWallet:
			b.seller = strings.TrimSpace(m.Content)
		}
	}
	if b.merchantID == "" {
		b.merchantID = r.defaultMerchant
	}
	b.turns = conversation(msgs)
	return b
}

// Handle answers one customer batch. merchantID, when set, is the merchant
// named by the request body; a merchant_id hint in the batch overrides it.
func (r *CustomerRouter) Handle(ctx context.Context, msgs []Message, merchantID string) (Response, error) {
	b := r.parse(msgs, merchantID)
	if len(b.turns) == 0 {
		return errorResponse(errors.New("no user message given")), nil
	}

	req := NegotiationRequest{
		System:   r.systemPrompt(ctx, b.merchantID),
		Messages: b.turns,
		Tools:    true,
	}

	for round := 0; ; round++ {
		decision, err := r.negotiator.Negotiate(ctx, req)
		if err != nil {
			r.logger.Error("customer negotiation failed", "merchant_id", b.merchantID, "error", err)
			return errorResponse(err), nil
		}

		if decision.Action == nil {
			return chat(decision.Reply), nil
		}

		switch decision.Action.Tool {
		case ToolCreatePropose:
			return r.propose(ctx, b, decision.Action)

		case ToolConsultMerchant:
			if round >= r.maxRounds {
				return errorResponse(ErrNegotiationStalled), nil
			}
			reply := r.consult(ctx, b.merchantID, decision.Action.Message)
			req.Messages = append(req.Messages,
				Message{Role: RoleAssistant, Content: decision.Action.Message},
				Message{Role: RoleMerchant, Content: reply},
			)

		default:
			return errorResponse(fmt.Errorf("unknown negotiation tool %q", decision.Action.Tool)), nil
		}
	}
}

func (r *CustomerRouter) systemPrompt(ctx context.Context, merchantID string) string {
	if r.merchant == nil || merchantID == "" {
		return customerPrompt
	}
	menu, err := r.merchant.Menu(ctx, merchantID)
	if err != nil {
		r.logger.Warn("fetching merchant menu", "merchant_id", merchantID, "error", err)
		return customerPrompt
	}
	var sb strings.Builder
	sb.WriteString(customerPrompt)
	sb.WriteString("\nMerchant ")
	sb.WriteString(merchantID)
	sb.WriteString(" menu:")
	for _, it := range menu {
		fmt.Fprintf(&sb, "\n- %s: %s", it.Display, it.Price)
	}
	return sb.String()
}

func (r *CustomerRouter) consult(ctx context.Context, merchantID, text string) string {
	if r.merchant == nil || merchantID == "" {
		return "no merchant agent is available"
	}
	reply, err := r.merchant.Chat(ctx, merchantID, text)
	if err != nil {
		r.logger.Warn("consulting merchant", "merchant_id", merchantID, "error", err)
		return "the merchant agent did not answer: " + err.Error()
	}
	return reply
}

func (r *CustomerRouter) propose(ctx context.Context, b customerBatch, action *Action) (Response, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(action.Price))
	if err != nil || !price.IsPositive() {
		return errorResponse(fmt.Errorf("%w: %q", escrow.ErrInvalidPrice, action.Price)), nil
	}

	// Without a buyer wallet or coordinator the proposal goes back unsigned.
	if b.buyer == "" || r.orders == nil {
		return Response{Type: TypePropose, Content: ProposeContent{Desc: action.Desc, Price: price.String()}}, nil
	}

	result, err := r.orders.CreateAndPriceOrder(ctx, settlement.Request{
		Buyer:        b.buyer,
		MerchantID:   b.merchantID,
		Description:  action.Desc,
		Price:        price,
		SellerWallet: b.seller,
	})

	var partial *settlement.PartialSettlementError
	switch {
	case errors.As(err, &partial):
		r.logger.Error("partial settlement", "order_id", partial.OrderID, "step", partial.Step, "error", partial.Err)
		return errorResponse(partial), nil
	case errors.Is(err, escrow.ErrInvalidAddress), errors.Is(err, escrow.ErrInvalidPrice):
		return errorResponse(err), nil
	case err != nil:
		return Response{}, fmt.Errorf("creating order: %w", err)
	}

	return Response{Type: TypeOrder, Content: OrderContent{
		OrderID:     result.OrderID,
		Price:       result.Price,
		Seller:      result.Seller.Hex(),
		ContentID:   result.ContentID,
		Transaction: result.Transaction,
	}}, nil
}
