package escrow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// OrderDetails is the decoded on-chain record of one order.
type OrderDetails struct {
	OrderID      string          `json:"order_id"`
	Buyer        common.Address  `json:"buyer"`
	Seller       common.Address  `json:"seller"`
	PromptDigest common.Hash     `json:"prompt_digest"`
	AnswerDigest common.Hash     `json:"answer_digest"`
	Price        decimal.Decimal `json:"price"`
	Paid         decimal.Decimal `json:"paid"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       Status          `json:"status"`
}

// HasSeller reports whether an answer has resolved the seller.
func (o *OrderDetails) HasSeller() bool {
	return o.Seller != (common.Address{})
}

// UnsignedTransaction is a transaction returned to a wallet for signing.
// Value is always zero: payment is pulled by the contract in tokens, and
// Amount is the token total the buyer must have approved.
type UnsignedTransaction struct {
	From     common.Address  `json:"from"`
	To       common.Address  `json:"to"`
	Data     hexutil.Bytes   `json:"data"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	ChainID  *hexutil.Big    `json:"chainId"`
	Value    *hexutil.Big    `json:"value"`
	Amount   decimal.Decimal `json:"amount"`
}

// Transaction returns the legacy transaction to sign.
func (u *UnsignedTransaction) Transaction() *types.Transaction {
	to := u.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    uint64(u.Nonce),
		GasPrice: u.GasPrice.ToInt(),
		Gas:      uint64(u.Gas),
		To:       &to,
		Value:    new(big.Int),
		Data:     u.Data,
	})
}

// OrderStatusEntry pairs an order id with its current status.
type OrderStatusEntry struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
}

// ContractInfo summarizes the escrow deployment.
type ContractInfo struct {
	Contract          common.Address  `json:"order_contract_address"`
	Controller        common.Address  `json:"agent_controller"`
	AgentFee          decimal.Decimal `json:"agent_fee"`
	HoldPeriodSeconds int64           `json:"hold_period_seconds"`
	ChainID           string          `json:"chain_id"`
	LatestBlock       uint64          `json:"latest_block"`
}

// Event is a decoded escrow contract event.
type Event struct {
	Name         string          `json:"name"`
	User         common.Address  `json:"user"`
	OrderID      string          `json:"order_id"`
	TxHash       common.Hash     `json:"transaction_hash"`
	BlockNumber  uint64          `json:"block_number"`
	PromptDigest common.Hash     `json:"prompt_digest,omitzero"`
	AmountPaid   decimal.Decimal `json:"amount_paid,omitzero"`

	// Status is the order status implied by the event.
	Status Status `json:"status"`
}
