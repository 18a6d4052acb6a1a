// Package settlement sequences order creation across the content store, the
// escrow ledger, and the merchant agent.
//
// CreateAndPriceOrder is not atomic. Once the order exists on-chain every
// later failure is returned as a *PartialSettlementError naming the order so
// it can be resumed with ResumeAnswer. Nothing is rolled back.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/eventstream"
)

const (
	// MerchantAnswer is the answer text recorded for every priced order.
	MerchantAnswer = "answer from merchant"

	defaultLabel         = "order"
	defaultRemoteTimeout = 10 * time.Second
)

// OrderDescriptionRecord is the off-chain payload bound to an order by its
// digest.
type OrderDescriptionRecord struct {
	Wallet string `json:"wallet"`
	Desc   string `json:"desc"`
	Price  string `json:"price"`
}

// Content stores order description records.
type Content interface {
	Store(ctx context.Context, payload []byte, label string) (contentstore.ContentID, error)
}

// Ledger is the subset of the escrow client the coordinator drives.
type Ledger interface {
	ProposeOrder(ctx context.Context, digest [32]byte, buyer string) (string, common.Hash, error)
	ProposeAnswer(ctx context.Context, orderID, answer string, price decimal.Decimal, seller string) (common.Hash, error)
	BuildConfirm(ctx context.Context, orderID, buyer string) (*escrow.UnsignedTransaction, error)
	GetOrder(ctx context.Context, orderID string) (*escrow.OrderDetails, error)
}

// WalletResolver asks a merchant agent for its payout address.
type WalletResolver interface {
	QueryWallet(ctx context.Context, merchantID string) (string, error)
}

// EventSink receives settlement outcome events. *worker.Pool satisfies it.
type EventSink interface {
	Publish(event *eventstream.OrderEvent) bool
}

// Config configures a Coordinator.
type Config struct {
	Content  Content
	Ledger   Ledger
	Merchant WalletResolver

	// DefaultSellerWallet is used when the merchant returns no valid wallet.
	DefaultSellerWallet string

	// RemoteTimeout bounds each merchant agent call. Defaults to 10s.
	RemoteTimeout time.Duration

	// OnPartial is called for every partial settlement.
	OnPartial func(p Pending)

	// OnResolved is called when a resumed order is fully settled.
	OnResolved func(orderID string)

	Events EventSink
	Logger *slog.Logger
}

// Request is a finalized order from the customer negotiation.
type Request struct {
	Buyer       string
	MerchantID  string
	Description string
	Price       decimal.Decimal
	Label       string

	// SellerWallet, when valid, is used as the seller without asking the
	// merchant agent.
	SellerWallet string
}

// ResumeRequest re-runs the answer step for an order left InProgress.
type ResumeRequest struct {
	OrderID    string
	MerchantID string
	Price      decimal.Decimal
}

// Pending describes an order stuck after its proposal.
type Pending struct {
	OrderID    string
	Step       string
	Buyer      string
	MerchantID string
	Price      decimal.Decimal
	Err        error

	seller string
}

// Result is a settled order awaiting the buyer's payment signature.
type Result struct {
	ContentID   contentstore.ContentID      `json:"content_id"`
	Digest      contentstore.Digest         `json:"prompt_digest"`
	OrderID     string                      `json:"order_id"`
	ProposeTx   common.Hash                 `json:"propose_tx,omitzero"`
	AnswerTx    common.Hash                 `json:"answer_tx,omitzero"`
	Seller      common.Address              `json:"seller"`
	Price       decimal.Decimal             `json:"price"`
	Transaction *escrow.UnsignedTransaction `json:"transaction"`
}

// Coordinator drives order creation.
type Coordinator struct {
	content       Content
	ledger        Ledger
	merchant      WalletResolver
	defaultWallet string
	timeout       time.Duration
	onPartial     func(Pending)
	onResolved    func(string)
	events        EventSink
	logger        *slog.Logger
}

// NewCoordinator validates cfg and returns a Coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Content == nil {
		return nil, errors.New("settlement content store is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("settlement ledger is required")
	}

	c := &Coordinator{
		content:       cfg.Content,
		ledger:        cfg.Ledger,
		merchant:      cfg.Merchant,
		defaultWallet: strings.TrimSpace(cfg.DefaultSellerWallet),
		timeout:       cfg.RemoteTimeout,
		onPartial:     cfg.OnPartial,
		onResolved:    cfg.OnResolved,
		events:        cfg.Events,
		logger:        cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = defaultRemoteTimeout
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// CreateAndPriceOrder stores the order description, proposes the order on
// behalf of the buyer, prices it with the merchant's wallet as seller, and
// returns the unsigned payment transaction.
func (c *Coordinator) CreateAndPriceOrder(ctx context.Context, req Request) (*Result, error) {
	if _, err := escrow.ParseAddress(req.Buyer); err != nil {
		return nil, err
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: %s", escrow.ErrInvalidPrice, req.Price)
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = defaultLabel
	}

	payload, err := json.Marshal(OrderDescriptionRecord{
		Wallet: req.Buyer,
		Desc:   req.Description,
		Price:  req.Price.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding order description: %w", err)
	}

	cid, err := c.content.Store(ctx, payload, label)
	if err != nil {
		return nil, fmt.Errorf("storing order description: %w", err)
	}
	digest, err := contentstore.DigestOf(cid)
	if err != nil {
		return nil, fmt.Errorf("deriving order digest: %w", err)
	}

	orderID, proposeTx, err := c.ledger.ProposeOrder(ctx, digest, req.Buyer)
	if err != nil {
		return nil, fmt.Errorf("proposing order: %w", err)
	}

	c.logger.Info("order proposed", "order_id", orderID, "buyer", req.Buyer, "content_id", cid.String())

	result := &Result{
		ContentID: cid,
		Digest:    digest,
		OrderID:   orderID,
		ProposeTx: proposeTx,
		Price:     req.Price,
	}

	pending := Pending{OrderID: orderID, Buyer: req.Buyer, MerchantID: req.MerchantID, Price: req.Price, seller: req.SellerWallet}
	if err := c.answerAndConfirm(ctx, result, pending, true); err != nil {
		return nil, err
	}
	return result, nil
}

// ResumeAnswer finishes an order left in the recovery gap. An order that
// already carries its answer skips straight to the confirm transaction.
func (c *Coordinator) ResumeAnswer(ctx context.Context, req ResumeRequest) (*Result, error) {
	order, err := c.ledger.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ContentID: contentstore.ContentIDOf(contentstore.Digest(order.PromptDigest)),
		Digest:    contentstore.Digest(order.PromptDigest),
		OrderID:   order.OrderID,
		Price:     req.Price,
	}
	pending := Pending{OrderID: order.OrderID, Buyer: order.Buyer.Hex(), MerchantID: req.MerchantID, Price: req.Price}

	switch order.Status {
	case escrow.StatusInProgress:
		if !req.Price.IsPositive() {
			return nil, fmt.Errorf("%w: %s", escrow.ErrInvalidPrice, req.Price)
		}
		if err := c.answerAndConfirm(ctx, result, pending, true); err != nil {
			return nil, err
		}

	case escrow.StatusProposed:
		result.Seller = order.Seller
		result.Price = order.Price
		if err := c.answerAndConfirm(ctx, result, pending, false); err != nil {
			return nil, err
		}

	default:
		return nil, &escrow.OrderError{
			OrderID: order.OrderID,
			Op:      "resume",
			Err:     fmt.Errorf("%w: order is %s", escrow.ErrInvalidTransition, order.Status),
		}
	}

	c.logger.Info("order resumed", "order_id", order.OrderID, "status", order.Status.String())
	if c.onResolved != nil {
		c.onResolved(order.OrderID)
	}
	return result, nil
}

// answerAndConfirm runs the steps that follow a successful proposal.
func (c *Coordinator) answerAndConfirm(ctx context.Context, result *Result, pending Pending, answer bool) error {
	if answer {
		seller, err := c.resolveSeller(ctx, pending.MerchantID, pending.seller)
		if err != nil {
			return c.partial(pending, escrow.StatusInProgress, "", StepResolveWallet, err)
		}

		answerTx, err := c.ledger.ProposeAnswer(ctx, result.OrderID, MerchantAnswer, result.Price, seller.Hex())
		if err != nil {
			return c.partial(pending, escrow.StatusInProgress, "", StepProposeAnswer, err)
		}
		result.Seller = seller
		result.AnswerTx = answerTx

		c.logger.Info("order priced", "order_id", result.OrderID, "price", result.Price.String(), "seller", seller.Hex())
	}

	tx, err := c.ledger.BuildConfirm(ctx, result.OrderID, pending.Buyer)
	if err != nil {
		return c.partial(pending, escrow.StatusProposed, result.Seller.Hex(), StepBuildConfirm, err)
	}
	result.Transaction = tx

	c.emit(result.OrderID, escrow.StatusProposed.String(), pending.Buyer, result.Seller.Hex(), "")
	return nil
}

// resolveSeller prefers a valid override, then asks the merchant for its
// wallet under the remote timeout, then falls back to the default wallet.
func (c *Coordinator) resolveSeller(ctx context.Context, merchantID, override string) (common.Address, error) {
	if override != "" {
		if addr, err := escrow.ParseAddress(override); err == nil {
			return addr, nil
		}
		c.logger.Warn("ignoring invalid seller wallet override", "merchant_id", merchantID, "wallet", override)
	}

	var remoteErr error

	if c.merchant != nil {
		tctx, cancel := context.WithTimeout(ctx, c.timeout)
		wallet, err := c.merchant.QueryWallet(tctx, merchantID)
		timedOut := errors.Is(tctx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case err != nil && (timedOut || errors.Is(err, context.DeadlineExceeded)):
			remoteErr = fmt.Errorf("%w after %s", ErrRemoteAgentTimeout, c.timeout)
		case err != nil:
			remoteErr = err
		default:
			addr, perr := escrow.ParseAddress(wallet)
			if perr == nil {
				return addr, nil
			}
			remoteErr = fmt.Errorf("merchant %s returned wallet %q: %w", merchantID, wallet, perr)
		}

		c.logger.Warn("merchant wallet unresolved, trying default", "merchant_id", merchantID, "error", remoteErr)
	}

	if c.defaultWallet != "" {
		if addr, err := escrow.ParseAddress(c.defaultWallet); err == nil {
			return addr, nil
		}
	}

	if remoteErr != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrUnresolvedSellerWallet, remoteErr)
	}
	return common.Address{}, ErrUnresolvedSellerWallet
}

// partial records a settlement that stopped after the order was proposed.
// status and seller describe the order as the ledger now holds it.
func (c *Coordinator) partial(p Pending, status escrow.Status, seller, step string, err error) error {
	perr := &PartialSettlementError{OrderID: p.OrderID, Step: step, Err: err}

	c.logger.Error("partial settlement", "order_id", p.OrderID, "step", step, "error", err)

	p.Step = step
	p.Err = err
	if c.onPartial != nil {
		c.onPartial(p)
	}
	c.emit(p.OrderID, status.String(), p.Buyer, seller, perr.Error())

	return perr
}

func (c *Coordinator) emit(orderID, status, buyer, seller, errMsg string) {
	if c.events == nil {
		return
	}
	c.events.Publish(eventstream.NewOrderEvent(
		eventstream.EventTypeOrderSettled,
		eventstream.EventSource{Service: "escrowd"},
		eventstream.OrderMeta{
			OrderID: orderID,
			Status:  status,
			Buyer:   buyer,
			Seller:  seller,
			Error:   errMsg,
		},
	))
}
