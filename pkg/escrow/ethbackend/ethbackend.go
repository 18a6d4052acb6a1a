// Package ethbackend implements escrow.Backend against an Ethereum JSON-RPC
// endpoint, signing controller transactions with a local key.
package ethbackend

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/papercomputeco/escrowd/pkg/escrow"
)

// DefaultReceiptPoll is how often WaitMined polls for a receipt.
const DefaultReceiptPoll = time.Second

// Config configures a Backend.
type Config struct {
	RPCURL   string
	Contract string

	// ControllerKey is the hex-encoded secp256k1 key of the agent
	// controller. Without it the backend is read-only.
	ControllerKey string

	// ChainID is checked against the node when non-zero.
	ChainID uint64

	ReceiptPoll time.Duration
	Logger      *slog.Logger
}

// Backend talks to an escrow contract over ethclient.
type Backend struct {
	client   *ethclient.Client
	contract common.Address
	chainID  *big.Int
	opts     *bind.TransactOpts
	poll     time.Duration
	logger   *slog.Logger
}

// ErrReadOnly is returned by Transact when no controller key is configured.
var ErrReadOnly = errors.New("no controller key configured")

// Dial connects to cfg.RPCURL and verifies the chain id.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("%w: contract %q", escrow.ErrInvalidAddress, cfg.Contract)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.RPCURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("reading chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("node chain id %s does not match configured %d", chainID, cfg.ChainID)
	}

	b := &Backend{
		client:   client,
		contract: common.HexToAddress(cfg.Contract),
		chainID:  chainID,
		poll:     cfg.ReceiptPoll,
		logger:   cfg.Logger,
	}
	if b.poll <= 0 {
		b.poll = DefaultReceiptPoll
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}

	if cfg.ControllerKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.ControllerKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("parsing controller key: %w", err)
		}
		if err := b.setKey(key); err != nil {
			client.Close()
			return nil, err
		}
	}

	return b, nil
}

func (b *Backend) setKey(key *ecdsa.PrivateKey) error {
	opts, err := bind.NewKeyedTransactorWithChainID(key, b.chainID)
	if err != nil {
		return fmt.Errorf("creating transactor: %w", err)
	}
	b.opts = opts
	return nil
}

// Close closes the RPC client.
func (b *Backend) Close() {
	b.client.Close()
}

// From implements escrow.Backend.
func (b *Backend) From() common.Address {
	if b.opts == nil {
		return common.Address{}
	}
	return b.opts.From
}

// Contract implements escrow.Backend.
func (b *Backend) Contract() common.Address {
	return b.contract
}

// ChainID implements escrow.Backend.
func (b *Backend) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

// BlockNumber implements escrow.Backend.
func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	return b.client.BlockNumber(ctx)
}

// PendingNonce implements escrow.Backend.
func (b *Backend) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return b.client.PendingNonceAt(ctx, addr)
}

// Call implements escrow.Backend against the latest block.
func (b *Backend) Call(ctx context.Context, data []byte) ([]byte, error) {
	to := b.contract
	return b.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// FilterLogs implements escrow.Backend.
func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return b.client.FilterLogs(ctx, q)
}

// Transact implements escrow.Backend with a legacy transaction signed by the
// controller key.
func (b *Backend) Transact(ctx context.Context, req escrow.TxRequest) (common.Hash, error) {
	if b.opts == nil {
		return common.Hash{}, ErrReadOnly
	}

	nonce, err := b.client.PendingNonceAt(ctx, b.opts.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("reading nonce: %w", err)
	}

	to := b.contract
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: req.GasPrice,
		Gas:      req.GasLimit,
		To:       &to,
		Value:    new(big.Int),
		Data:     req.Data,
	})

	signed, err := b.opts.Signer(b.opts.From, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("sending transaction: %w", err)
	}

	b.logger.Debug("sent transaction", "tx", signed.Hash().Hex(), "nonce", nonce, "gas", req.GasLimit)
	return signed.Hash(), nil
}

// WaitMined implements escrow.Backend by polling for the receipt until ctx
// is done.
func (b *Backend) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		receipt, err := b.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
