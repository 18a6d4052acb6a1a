// Package agent routes inbound role-tagged messages for the customer and
// merchant agents.
//
// The merchant router answers wallet and menu queries from the knowledge
// registry and applies admin commands. The customer router runs the
// negotiation loop and hands finalized orders to the settlement coordinator.
package agent

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
)

// Message roles.
const (
	RoleWallet         = "wallet"
	RoleMerchantWallet = "merchant_wallet"
	RoleQueryWallet    = "query_wallet"
	RoleQueryMenu      = "query_menu"
	RoleListMenu       = "list_menu"
	RoleUser           = "user"
	RoleAssistant      = "assistant"
	RoleAgent          = "agent"
)

// Response types.
const (
	TypeChat    = "chat"
	TypeOrder   = "order"
	TypePropose = "propose"
	TypeError   = "error"
	TypeWallet  = "wallet"
	TypeMenu    = "menu"
)

// merchantHintPrefix scopes a batch to one merchant.
const merchantHintPrefix = "merchant_id:"

// Message is one inbound message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the single structured reply to a batch of messages.
type Response struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// OrderContent is the content of an order response.
type OrderContent struct {
	OrderID     string                      `json:"orderId"`
	Price       decimal.Decimal             `json:"price"`
	Seller      string                      `json:"seller"`
	ContentID   contentstore.ContentID      `json:"contentId"`
	Transaction *escrow.UnsignedTransaction `json:"transaction"`
}

// ProposeContent is a proposed order that was not submitted.
type ProposeContent struct {
	Desc  string `json:"desc"`
	Price string `json:"price"`
}

// MenuContent is the content of a menu response.
type MenuContent struct {
	MerchantID string                `json:"merchant_id"`
	Items      []knowledge.MenuEntry `json:"items"`
}

func chat(text string) Response {
	return Response{Type: TypeChat, Content: text}
}

func errorResponse(err error) Response {
	return Response{Type: TypeError, Content: err.Error()}
}

// merchantHint returns the merchant id carried by an agent message.
func merchantHint(m Message) (string, bool) {
	if m.Role != RoleAgent {
		return "", false
	}
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, merchantHintPrefix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimPrefix(content, merchantHintPrefix))
	return id, id != ""
}

// conversation keeps the user and assistant turns of a batch.
func conversation(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
