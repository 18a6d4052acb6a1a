package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// Ledger event types, one per escrow contract event.
	EventTypeOrderProposed  = "escrowd.order.proposed"
	EventTypeOrderConfirmed = "escrowd.order.confirmed"
	EventTypeOrderFinalized = "escrowd.order.finalized"

	// EventTypeOrderSettled is emitted after the settlement coordinator
	// finishes an order, successfully or not.
	EventTypeOrderSettled = "escrowd.order.settled"
)

// OrderEvent is a transport-neutral event payload for an escrow order.
type OrderEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Order         OrderMeta   `json:"order"`
}

// EventSource identifies the ledger the event came from.
type EventSource struct {
	Service  string `json:"service"`
	ChainID  string `json:"chain_id,omitempty"`
	Contract string `json:"contract,omitempty"`
}

// OrderMeta captures the order state carried by the event.
type OrderMeta struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	Contract     string `json:"contract_event,omitempty"`
	Buyer        string `json:"buyer,omitempty"`
	Seller       string `json:"seller,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	AmountPaid   string `json:"amount_paid,omitempty"`
	PromptDigest string `json:"prompt_digest,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewOrderEvent returns an event with a fresh id and the current time.
func NewOrderEvent(eventType string, source EventSource, order OrderMeta) *OrderEvent {
	return &OrderEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Order:         order,
	}
}
