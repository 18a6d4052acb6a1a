package escrow

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is a controller-signed transaction to submit.
type TxRequest struct {
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
}

// Backend is the ledger seam: read-only calls, controller-signed submissions,
// receipt waits, and log queries against the escrow contract.
type Backend interface {
	// Call executes a read-only call against the contract.
	Call(ctx context.Context, data []byte) ([]byte, error)

	// Transact signs req with the controller key and submits it.
	Transact(ctx context.Context, req TxRequest) (common.Hash, error)

	// WaitMined blocks until the transaction has a receipt.
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// PendingNonce returns the next nonce for addr.
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)

	ChainID(ctx context.Context) (*big.Int, error)

	// From is the controller address used by Transact.
	From() common.Address

	// Contract is the escrow contract address.
	Contract() common.Address

	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	BlockNumber(ctx context.Context) (uint64, error)
}
