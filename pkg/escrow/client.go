// Package escrow drives the on-chain escrow contract that holds buyer funds
// between an order's proposal and its finalization.
//
// The Client packs calls against the contract ABI and talks to the ledger
// through a Backend. It never signs buyer transactions: BuildPropose,
// BuildConfirm, and BuildCancel return unsigned transactions for a wallet,
// while ProposeOrder, ProposeAnswer, and Finalize are signed by the agent
// controller key the Backend holds. Submissions are never retried.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Config configures a Client.
type Config struct {
	Backend Backend
	Logger  *slog.Logger

	// Now is used for hold period checks. Defaults to time.Now.
	Now func() time.Time
}

// Client is the escrow contract client.
type Client struct {
	backend Backend
	abi     abi.ABI
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient returns a Client over cfg.Backend.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Backend == nil {
		return nil, errors.New("escrow backend is required")
	}

	parsed, err := ABI()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		backend: cfg.Backend,
		abi:     parsed,
		logger:  logger,
		now:     now,
	}, nil
}

// Backend returns the ledger backend.
func (c *Client) Backend() Backend {
	return c.backend
}

// ParseAddress validates a hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return addr, nil
}

// ParseOrderID validates a decimal order id.
func ParseOrderID(orderID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(orderID), 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderID, orderID)
	}
	return id, nil
}

// AnswerDigest is the keccak256 of the answer text recorded on-chain.
func AnswerDigest(answer string) common.Hash {
	return crypto.Keccak256Hash([]byte(answer))
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	out, err := c.backend.Call(ctx, data)
	if err != nil {
		return nil, unavailable(fmt.Errorf("calling %s: %w", method, err))
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	return values, nil
}

func (c *Client) unsigned(ctx context.Context, from common.Address, gas uint64, method string, args ...any) (*UnsignedTransaction, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	nonce, err := c.backend.PendingNonce(ctx, from)
	if err != nil {
		return nil, unavailable(fmt.Errorf("reading nonce: %w", err))
	}
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, unavailable(fmt.Errorf("reading chain id: %w", err))
	}

	return &UnsignedTransaction{
		From:     from,
		To:       c.backend.Contract(),
		Data:     data,
		Gas:      hexutil.Uint64(gas),
		GasPrice: (*hexutil.Big)(GasPrice()),
		Nonce:    hexutil.Uint64(nonce),
		ChainID:  (*hexutil.Big)(chainID),
		Value:    (*hexutil.Big)(new(big.Int)),
		Amount:   decimal.Zero,
	}, nil
}

// transact submits a controller-signed call and waits for a successful
// receipt.
func (c *Client) transact(ctx context.Context, gas uint64, method string, args ...any) (*types.Receipt, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	hash, err := c.backend.Transact(ctx, TxRequest{Data: data, GasLimit: gas, GasPrice: GasPrice()})
	if err != nil {
		return nil, unavailable(fmt.Errorf("submitting %s: %w", method, err))
	}
	c.logger.Debug("submitted escrow transaction", "method", method, "tx", hash.Hex())

	receipt, err := c.backend.WaitMined(ctx, hash)
	if err != nil {
		return nil, unavailable(fmt.Errorf("waiting for %s: %w", hash.Hex(), err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex())
	}
	return receipt, nil
}

func (c *Client) requireController(ctx context.Context) error {
	controller, err := c.AgentController(ctx)
	if err != nil {
		return err
	}
	if controller != c.backend.From() {
		return fmt.Errorf("%w: signer %s, controller %s", ErrNotAuthorized, c.backend.From().Hex(), controller.Hex())
	}
	return nil
}

// BuildPropose returns the buyer-signed proposeOrder transaction.
func (c *Client) BuildPropose(ctx context.Context, digest [32]byte, buyer string) (*UnsignedTransaction, error) {
	buyerAddr, err := ParseAddress(buyer)
	if err != nil {
		return nil, err
	}
	return c.unsigned(ctx, buyerAddr, GasLimitPropose, MethodProposeOrder, digest, buyerAddr)
}

// ProposeOrder creates an order on behalf of buyer with the controller key
// and returns the ledger-assigned order id.
func (c *Client) ProposeOrder(ctx context.Context, digest [32]byte, buyer string) (string, common.Hash, error) {
	buyerAddr, err := ParseAddress(buyer)
	if err != nil {
		return "", common.Hash{}, err
	}

	receipt, err := c.transact(ctx, GasLimitPropose, MethodProposeOrder, digest, buyerAddr)
	if err != nil {
		return "", common.Hash{}, orderErr("propose", "", err)
	}

	for _, l := range receipt.Logs {
		ev, err := c.DecodeEvent(*l)
		if err != nil || ev.Name != EventOrderProposed {
			continue
		}
		c.logger.Info("order proposed", "order_id", ev.OrderID, "buyer", buyerAddr.Hex(), "tx", receipt.TxHash.Hex())
		return ev.OrderID, receipt.TxHash, nil
	}

	return "", receipt.TxHash, orderErr("propose", "", fmt.Errorf("%w: %s in %s", ErrEventNotFound, EventOrderProposed, receipt.TxHash.Hex()))
}

// ProposeAnswer sets price and seller on an InProgress order with the
// controller key. The answer digest is the keccak256 of answer.
func (c *Client) ProposeAnswer(ctx context.Context, orderID, answer string, price decimal.Decimal, seller string) (common.Hash, error) {
	if !price.IsPositive() {
		return common.Hash{}, orderErr("answer", orderID, fmt.Errorf("%w: %s", ErrInvalidPrice, price))
	}
	sellerAddr, err := ParseAddress(seller)
	if err != nil {
		return common.Hash{}, orderErr("answer", orderID, err)
	}
	id, err := ParseOrderID(orderID)
	if err != nil {
		return common.Hash{}, orderErr("answer", orderID, err)
	}

	if err := c.requireController(ctx); err != nil {
		return common.Hash{}, orderErr("answer", orderID, err)
	}

	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return common.Hash{}, err
	}
	if order.Status != StatusInProgress {
		return common.Hash{}, orderErr("answer", orderID, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, StatusProposed))
	}

	receipt, err := c.transact(ctx, GasLimitAnswer, MethodProposeOrderAnswer, AnswerDigest(answer), id, ToWei(price), sellerAddr)
	if err != nil {
		return common.Hash{}, orderErr("answer", orderID, err)
	}

	c.logger.Info("order answered", "order_id", orderID, "price", price.String(), "seller", sellerAddr.Hex(), "tx", receipt.TxHash.Hex())
	return receipt.TxHash, nil
}

// BuildConfirm returns the buyer-signed confirmOrder transaction. Amount is
// the order price plus the agent fee.
func (c *Client) BuildConfirm(ctx context.Context, orderID, buyer string) (*UnsignedTransaction, error) {
	buyerAddr, err := ParseAddress(buyer)
	if err != nil {
		return nil, orderErr("confirm", orderID, err)
	}

	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	fee, err := c.AgentFee(ctx)
	if err != nil {
		return nil, orderErr("confirm", orderID, err)
	}

	id, _ := ParseOrderID(orderID)
	tx, err := c.unsigned(ctx, buyerAddr, GasLimitConfirm, MethodConfirmOrder, id)
	if err != nil {
		return nil, orderErr("confirm", orderID, err)
	}
	tx.Amount = order.Price.Add(fee)
	return tx, nil
}

// Finalize releases escrowed funds to the seller of a Confirmed order.
func (c *Client) Finalize(ctx context.Context, orderID string) (common.Hash, error) {
	id, err := ParseOrderID(orderID)
	if err != nil {
		return common.Hash{}, orderErr("finalize", orderID, err)
	}
	if err := c.requireController(ctx); err != nil {
		return common.Hash{}, orderErr("finalize", orderID, err)
	}

	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return common.Hash{}, err
	}
	if order.Status != StatusConfirmed {
		return common.Hash{}, orderErr("finalize", orderID, fmt.Errorf("%w: status %s", ErrOrderNotFinalizable, order.Status))
	}

	receipt, err := c.transact(ctx, GasLimitFinal, MethodFinalizeOrder, id)
	if err != nil {
		return common.Hash{}, orderErr("finalize", orderID, err)
	}

	c.logger.Info("order finalized", "order_id", orderID, "tx", receipt.TxHash.Hex())
	return receipt.TxHash, nil
}

// BuildCancel returns the buyer-signed cancelOrder transaction for a
// Confirmed order whose hold period has elapsed.
func (c *Client) BuildCancel(ctx context.Context, orderID, buyer string) (*UnsignedTransaction, error) {
	buyerAddr, err := ParseAddress(buyer)
	if err != nil {
		return nil, orderErr("cancel", orderID, err)
	}

	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusConfirmed {
		return nil, orderErr("cancel", orderID, fmt.Errorf("%w: status %s", ErrOrderNotCancellable, order.Status))
	}
	if until := order.CreatedAt.Add(HoldPeriod); c.now().Before(until) {
		return nil, orderErr("cancel", orderID, fmt.Errorf("%w: hold period ends %s", ErrOrderNotCancellable, until.UTC().Format(time.RFC3339)))
	}

	id, _ := ParseOrderID(orderID)
	tx, err := c.unsigned(ctx, buyerAddr, GasLimitCancel, MethodCancelOrder, id)
	if err != nil {
		return nil, orderErr("cancel", orderID, err)
	}
	return tx, nil
}

// GetOrder reads and decodes offers(orderID).
func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	id, err := ParseOrderID(orderID)
	if err != nil {
		return nil, orderErr("get", orderID, err)
	}

	values, err := c.call(ctx, MethodOffers, id)
	if err != nil {
		return nil, orderErr("get", orderID, err)
	}
	if len(values) != 8 {
		return nil, orderErr("get", orderID, fmt.Errorf("offers returned %d values", len(values)))
	}

	buyer, _ := values[0].(common.Address)
	if buyer == (common.Address{}) {
		return nil, orderErr("get", orderID, ErrOrderNotFound)
	}
	seller, _ := values[1].(common.Address)
	prompt, _ := values[2].([32]byte)
	answer, _ := values[3].([32]byte)
	price, _ := values[4].(*big.Int)
	paid, _ := values[5].(*big.Int)
	ts, _ := values[6].(*big.Int)
	code, _ := values[7].(uint8)

	status, err := StatusFromCode(code)
	if err != nil {
		return nil, orderErr("get", orderID, err)
	}

	var created time.Time
	if ts != nil {
		created = time.Unix(ts.Int64(), 0).UTC()
	}

	return &OrderDetails{
		OrderID:      id.String(),
		Buyer:        buyer,
		Seller:       seller,
		PromptDigest: prompt,
		AnswerDigest: answer,
		Price:        FromWei(price),
		Paid:         FromWei(paid),
		CreatedAt:    created,
		Status:       status,
	}, nil
}

func idsToStrings(ids []*big.Int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// UserOrderIDs lists every order id created for user.
func (c *Client) UserOrderIDs(ctx context.Context, user string) ([]string, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, MethodGetUserOrderIDs, addr)
	if err != nil {
		return nil, err
	}
	ids, _ := values[0].([]*big.Int)
	return idsToStrings(ids), nil
}

// UserOrdersWithStatus lists every order of user with its status.
func (c *Client) UserOrdersWithStatus(ctx context.Context, user string) ([]OrderStatusEntry, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, MethodGetUserOrdersWithStatus, addr)
	if err != nil {
		return nil, err
	}

	ids, _ := values[0].([]*big.Int)
	codes, _ := values[1].([]uint8)
	if len(ids) != len(codes) {
		return nil, fmt.Errorf("%s returned %d ids and %d statuses", MethodGetUserOrdersWithStatus, len(ids), len(codes))
	}

	out := make([]OrderStatusEntry, 0, len(ids))
	for i, id := range ids {
		status, err := StatusFromCode(codes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, OrderStatusEntry{OrderID: id.String(), Status: status})
	}
	return out, nil
}

// UserOrdersByStatus lists the orders of user currently in status.
func (c *Client) UserOrdersByStatus(ctx context.Context, user string, status Status) ([]string, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, MethodGetUserOrdersByStatus, addr, uint8(status))
	if err != nil {
		return nil, err
	}
	ids, _ := values[0].([]*big.Int)
	return idsToStrings(ids), nil
}

// HasUserOrder reports whether orderID belongs to user.
func (c *Client) HasUserOrder(ctx context.Context, user, orderID string) (bool, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return false, err
	}
	id, err := ParseOrderID(orderID)
	if err != nil {
		return false, err
	}
	values, err := c.call(ctx, MethodHasUserOrder, addr, id)
	if err != nil {
		return false, err
	}
	ok, _ := values[0].(bool)
	return ok, nil
}

// UserOrderStatus returns the status of a user's order.
func (c *Client) UserOrderStatus(ctx context.Context, user, orderID string) (Status, error) {
	addr, err := ParseAddress(user)
	if err != nil {
		return 0, err
	}
	id, err := ParseOrderID(orderID)
	if err != nil {
		return 0, err
	}
	values, err := c.call(ctx, MethodGetUserOrderStatus, addr, id)
	if err != nil {
		return 0, err
	}
	code, _ := values[0].(uint8)
	return StatusFromCode(code)
}

// AgentController returns the address authorized to answer and finalize.
func (c *Client) AgentController(ctx context.Context) (common.Address, error) {
	values, err := c.call(ctx, MethodGetAgentController)
	if err != nil {
		return common.Address{}, err
	}
	addr, _ := values[0].(common.Address)
	return addr, nil
}

// AgentFee returns the contract's agent fee in token units.
func (c *Client) AgentFee(ctx context.Context) (decimal.Decimal, error) {
	values, err := c.call(ctx, MethodGetAgentFee)
	if err != nil {
		return decimal.Zero, err
	}
	fee, _ := values[0].(*big.Int)
	return FromWei(fee), nil
}

// Info summarizes the contract deployment.
func (c *Client) Info(ctx context.Context) (*ContractInfo, error) {
	controller, err := c.AgentController(ctx)
	if err != nil {
		return nil, err
	}
	fee, err := c.AgentFee(ctx)
	if err != nil {
		return nil, err
	}
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	block, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, unavailable(err)
	}

	return &ContractInfo{
		Contract:          c.backend.Contract(),
		Controller:        controller,
		AgentFee:          fee,
		HoldPeriodSeconds: int64(HoldPeriod / time.Second),
		ChainID:           chainID.String(),
		LatestBlock:       block,
	}, nil
}
