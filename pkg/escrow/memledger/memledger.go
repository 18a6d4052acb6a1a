// Package memledger is an in-process escrow ledger implementing
// escrow.Backend. It executes the escrow contract rules against memory so
// the daemon and its tests can run without a chain.
package memledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/papercomputeco/escrowd/pkg/escrow"
)

// DefaultChainID is the chain id reported when none is configured.
const DefaultChainID = 31337

// ErrReceiptNotFound is returned by WaitMined for unknown transactions.
var ErrReceiptNotFound = errors.New("receipt not found")

// revert is a contract rule violation. The transaction is mined with a
// failed receipt.
type revert struct {
	reason string
}

func (r revert) Error() string {
	return "execution reverted: " + r.reason
}

type order struct {
	buyer     common.Address
	seller    common.Address
	prompt    [32]byte
	answer    [32]byte
	price     *big.Int
	paid      *big.Int
	timestamp int64
	status    escrow.Status
}

// Config configures a Ledger.
type Config struct {
	// Controller is the agent controller address. Defaults to a fixed
	// development address.
	Controller common.Address

	// Contract is the reported contract address.
	Contract common.Address

	ChainID  *big.Int
	AgentFee *big.Int

	// Now is the ledger clock used for block timestamps.
	Now func() time.Time
}

// Ledger is the in-process escrow contract.
type Ledger struct {
	mu sync.Mutex

	abi        abi.ABI
	controller common.Address
	contract   common.Address
	signer     common.Address
	chainID    *big.Int
	fee        *big.Int
	now        func() time.Time

	nextID     int64
	orders     map[int64]*order
	userOrders map[common.Address][]int64

	block    uint64
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	payouts  map[common.Address]*big.Int
}

// DevController is the default controller address.
var DevController = common.HexToAddress("0x00000000000000000000000000000000000a6e7c")

// DevContract is the default contract address.
var DevContract = common.HexToAddress("0x000000000000000000000000000000000e5c7000")

// New returns an empty ledger whose signer is the controller.
func New(cfg Config) (*Ledger, error) {
	parsed, err := escrow.ABI()
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		abi:        parsed,
		controller: cfg.Controller,
		contract:   cfg.Contract,
		chainID:    cfg.ChainID,
		fee:        cfg.AgentFee,
		now:        cfg.Now,
		nextID:     1,
		orders:     map[int64]*order{},
		userOrders: map[common.Address][]int64{},
		nonces:     map[common.Address]uint64{},
		receipts:   map[common.Hash]*types.Receipt{},
		payouts:    map[common.Address]*big.Int{},
	}
	if l.controller == (common.Address{}) {
		l.controller = DevController
	}
	if l.contract == (common.Address{}) {
		l.contract = DevContract
	}
	if l.chainID == nil {
		l.chainID = big.NewInt(DefaultChainID)
	}
	if l.fee == nil {
		l.fee = new(big.Int).Set(escrow.AgentFee)
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.signer = l.controller

	return l, nil
}

// SetSigner changes the address Transact signs as.
func (l *Ledger) SetSigner(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signer = addr
}

// Controller returns the agent controller address.
func (l *Ledger) Controller() common.Address {
	return l.controller
}

// Payout returns the total released to addr by finalize and cancel.
func (l *Ledger) Payout(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.payouts[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// From implements escrow.Backend.
func (l *Ledger) From() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signer
}

// Contract implements escrow.Backend.
func (l *Ledger) Contract() common.Address {
	return l.contract
}

// ChainID implements escrow.Backend.
func (l *Ledger) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}

// BlockNumber implements escrow.Backend.
func (l *Ledger) BlockNumber(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block, nil
}

// PendingNonce implements escrow.Backend.
func (l *Ledger) PendingNonce(_ context.Context, addr common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[addr], nil
}

// Transact implements escrow.Backend by executing req as the current signer.
func (l *Ledger) Transact(ctx context.Context, req escrow.TxRequest) (common.Hash, error) {
	return l.Submit(ctx, l.From(), req.Data)
}

// Submit executes calldata sent by from, as if a wallet had signed and
// broadcast it. Rule violations are mined as failed receipts.
func (l *Ledger) Submit(ctx context.Context, from common.Address, data []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}

	method, args, err := l.decode(data)
	if err != nil {
		return common.Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nonce := l.nonces[from]
	l.nonces[from] = nonce + 1
	l.block++

	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)
	hash := crypto.Keccak256Hash(from.Bytes(), nb[:], data)

	logs, execErr := l.execute(from, method.Name, args)

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(l.block),
	}
	if execErr != nil {
		var r revert
		if !errors.As(execErr, &r) {
			return common.Hash{}, execErr
		}
		receipt.Status = types.ReceiptStatusFailed
		logs = nil
	}

	for i := range logs {
		logs[i].Address = l.contract
		logs[i].TxHash = hash
		logs[i].BlockNumber = l.block
		logs[i].Index = uint(len(l.logs))
		l.logs = append(l.logs, logs[i])
		receipt.Logs = append(receipt.Logs, &logs[i])
	}
	l.receipts[hash] = receipt

	return hash, nil
}

// WaitMined implements escrow.Backend. Transactions are mined on submit.
func (l *Ledger) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	receipt, ok := l.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, hash.Hex())
	}
	return receipt, nil
}

// FilterLogs implements escrow.Backend for block range, address, and
// topic0 filters.
func (l *Ledger) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []types.Log
	for _, lg := range l.logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !slices.Contains(q.Addresses, lg.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !slices.Contains(q.Topics[0], lg.Topics[0]) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

// Call implements escrow.Backend for the contract's view functions.
func (l *Ledger) Call(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	method, args, err := l.decode(data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch method.Name {
	case escrow.MethodOffers:
		o, ok := l.find(args[0].(*big.Int))
		if !ok {
			o = &order{price: new(big.Int), paid: new(big.Int)}
		}
		return method.Outputs.Pack(o.buyer, o.seller, o.prompt, o.answer, o.price, o.paid, big.NewInt(o.timestamp), uint8(o.status))

	case escrow.MethodGetUserOrderIDs:
		return method.Outputs.Pack(l.ids(args[0].(common.Address), nil))

	case escrow.MethodGetUserOrdersWithStatus:
		user := args[0].(common.Address)
		ids := l.ids(user, nil)
		statuses := make([]uint8, 0, len(ids))
		for _, id := range ids {
			statuses = append(statuses, uint8(l.orders[id.Int64()].status))
		}
		return method.Outputs.Pack(ids, statuses)

	case escrow.MethodGetUserOrdersByStatus:
		status := escrow.Status(args[1].(uint8))
		return method.Outputs.Pack(l.ids(args[0].(common.Address), &status))

	case escrow.MethodHasUserOrder:
		o, ok := l.find(args[1].(*big.Int))
		return method.Outputs.Pack(ok && o.buyer == args[0].(common.Address))

	case escrow.MethodGetUserOrderStatus:
		o, ok := l.find(args[1].(*big.Int))
		if !ok || o.buyer != args[0].(common.Address) {
			return nil, revert{reason: "order does not belong to user"}
		}
		return method.Outputs.Pack(uint8(o.status))

	case escrow.MethodGetAgentController:
		return method.Outputs.Pack(l.controller)

	case escrow.MethodGetAgentFee:
		return method.Outputs.Pack(new(big.Int).Set(l.fee))

	default:
		return nil, fmt.Errorf("%s is not a view function", method.Name)
	}
}

func (l *Ledger) decode(data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("calldata too short")
	}
	method, err := l.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %s arguments: %w", method.Name, err)
	}
	return method, args, nil
}

func (l *Ledger) ids(user common.Address, status *escrow.Status) []*big.Int {
	out := []*big.Int{}
	for _, id := range l.userOrders[user] {
		if status != nil && l.orders[id].status != *status {
			continue
		}
		out = append(out, big.NewInt(id))
	}
	return out
}

// find returns the order for id. Ids outside int64 never match.
func (l *Ledger) find(id *big.Int) (*order, bool) {
	if !id.IsInt64() {
		return nil, false
	}
	o, ok := l.orders[id.Int64()]
	return o, ok
}

func (l *Ledger) lookup(id *big.Int) (int64, *order, error) {
	o, ok := l.find(id)
	if !ok {
		return 0, nil, revert{reason: "order does not exist"}
	}
	return id.Int64(), o, nil
}

func (l *Ledger) execute(from common.Address, method string, args []any) ([]types.Log, error) {
	switch method {
	case escrow.MethodProposeOrder:
		prompt := args[0].([32]byte)
		buyer := args[1].(common.Address)
		if from != buyer && from != l.controller {
			return nil, revert{reason: "sender must be buyer or agent controller"}
		}

		id := l.nextID
		l.nextID++
		l.orders[id] = &order{
			buyer:     buyer,
			prompt:    prompt,
			price:     new(big.Int),
			paid:      new(big.Int),
			timestamp: l.now().Unix(),
			status:    escrow.StatusInProgress,
		}
		l.userOrders[buyer] = append(l.userOrders[buyer], id)
		return l.emit(escrow.EventOrderProposed, buyer, big.NewInt(id), prompt)

	case escrow.MethodProposeOrderAnswer:
		if from != l.controller {
			return nil, revert{reason: "only agent controller"}
		}
		_, o, err := l.lookup(args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		price := args[2].(*big.Int)
		if o.status != escrow.StatusInProgress {
			return nil, revert{reason: "order not in progress"}
		}
		if price.Sign() <= 0 {
			return nil, revert{reason: "price must be positive"}
		}
		o.answer = args[0].([32]byte)
		o.price = new(big.Int).Set(price)
		o.seller = args[3].(common.Address)
		o.status = escrow.StatusProposed
		return nil, nil

	case escrow.MethodConfirmOrder:
		id, o, err := l.lookup(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if from != o.buyer {
			return nil, revert{reason: "only buyer"}
		}
		if o.status != escrow.StatusProposed {
			return nil, revert{reason: "order not proposed"}
		}
		o.paid = new(big.Int).Add(o.price, l.fee)
		o.status = escrow.StatusConfirmed
		return l.emit(escrow.EventOrderConfirmed, o.buyer, big.NewInt(id), new(big.Int).Set(o.paid))

	case escrow.MethodFinalizeOrder:
		if from != l.controller {
			return nil, revert{reason: "only agent controller"}
		}
		id, o, err := l.lookup(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if o.status != escrow.StatusConfirmed {
			return nil, revert{reason: "order not confirmed"}
		}
		o.status = escrow.StatusCompleted
		l.credit(o.seller, o.price)
		l.credit(l.controller, new(big.Int).Sub(o.paid, o.price))
		return l.emit(escrow.EventOrderFinalized, o.buyer, big.NewInt(id))

	case escrow.MethodCancelOrder:
		_, o, err := l.lookup(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if from != o.buyer {
			return nil, revert{reason: "only buyer"}
		}
		if o.status != escrow.StatusConfirmed {
			return nil, revert{reason: "order not confirmed"}
		}
		if l.now().Unix() < o.timestamp+int64(escrow.HoldPeriod/time.Second) {
			return nil, revert{reason: "hold period not elapsed"}
		}
		o.status = escrow.StatusCancelled
		l.credit(o.buyer, o.paid)
		return nil, nil

	default:
		return nil, fmt.Errorf("%s is not a transaction", method)
	}
}

func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	cur, ok := l.payouts[addr]
	if !ok {
		cur = new(big.Int)
		l.payouts[addr] = cur
	}
	cur.Add(cur, amount)
}

func (l *Ledger) emit(name string, user common.Address, args ...any) ([]types.Log, error) {
	ev := l.abi.Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", name, err)
	}
	return []types.Log{{
		Topics: []common.Hash{ev.ID, common.BytesToHash(user.Bytes())},
		Data:   data,
	}}, nil
}
