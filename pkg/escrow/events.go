package escrow

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownEvent is returned for logs that are not escrow events.
var ErrUnknownEvent = errors.New("unknown escrow event")

var eventNames = []string{EventOrderProposed, EventOrderConfirmed, EventOrderFinalized}

var eventStatus = map[string]Status{
	EventOrderProposed:  StatusInProgress,
	EventOrderConfirmed: StatusConfirmed,
	EventOrderFinalized: StatusCompleted,
}

// EventTopics returns the topic0 hashes of the escrow events, for log
// filters.
func EventTopics() ([]common.Hash, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	topics := make([]common.Hash, 0, len(eventNames))
	for _, name := range eventNames {
		topics = append(topics, parsed.Events[name].ID)
	}
	return topics, nil
}

// DecodeEvent decodes an escrow contract log.
func (c *Client) DecodeEvent(l types.Log) (*Event, error) {
	return decodeEvent(c.abi, l)
}

// DecodeEvent decodes an escrow contract log without a Client.
func DecodeEvent(l types.Log) (*Event, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, err
	}
	return decodeEvent(parsed, l)
}

func decodeEvent(parsed abi.ABI, l types.Log) (*Event, error) {
	if len(l.Topics) < 2 {
		return nil, ErrUnknownEvent
	}

	ev, err := parsed.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: topic %s", ErrUnknownEvent, l.Topics[0].Hex())
	}
	status, ok := eventStatus[ev.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}

	fields := map[string]any{}
	if err := parsed.UnpackIntoMap(fields, ev.Name, l.Data); err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", ev.Name, err)
	}

	out := &Event{
		Name:        ev.Name,
		User:        common.BytesToAddress(l.Topics[1].Bytes()),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		Status:      status,
	}
	if id, ok := fields["offerId"].(*big.Int); ok {
		out.OrderID = id.String()
	}
	if digest, ok := fields["promptHash"].([32]byte); ok {
		out.PromptDigest = digest
	}
	if paid, ok := fields["amountPaid"].(*big.Int); ok {
		out.AmountPaid = FromWei(paid)
	}

	return out, nil
}
