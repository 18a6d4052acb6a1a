// Package watch polls the ledger for escrow contract events and fans them
// out to callbacks and the event stream.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/eventstream"
	"github.com/papercomputeco/escrowd/pkg/worker"
)

const defaultInterval = 5 * time.Second

// Handler receives decoded events in ledger order.
type Handler func(ctx context.Context, ev *escrow.Event)

// Config configures a Watcher.
type Config struct {
	Backend escrow.Backend

	// Pool publishes each event to the event stream. Optional.
	Pool *worker.Pool

	// FromBlock is the first block to scan. Zero starts at the current head.
	FromBlock uint64

	Interval time.Duration
	Logger   *slog.Logger
}

// Watcher polls FilterLogs for new escrow events.
type Watcher struct {
	backend  escrow.Backend
	pool     *worker.Pool
	interval time.Duration
	logger   *slog.Logger
	topics   []common.Hash
	source   eventstream.EventSource

	mu       sync.Mutex
	next     uint64
	started  bool
	handlers []Handler
	last     map[string]escrow.Status
}

// New returns a Watcher. Call Run to start polling.
func New(cfg Config) (*Watcher, error) {
	if cfg.Backend == nil {
		return nil, errors.New("watch backend is required")
	}
	topics, err := escrow.EventTopics()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		backend:  cfg.Backend,
		pool:     cfg.Pool,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		topics:   topics,
		next:     cfg.FromBlock,
		started:  cfg.FromBlock != 0,
		last:     map[string]escrow.Status{},
		source: eventstream.EventSource{
			Service:  "escrowd",
			Contract: cfg.Backend.Contract().Hex(),
		},
	}
	if w.interval <= 0 {
		w.interval = defaultInterval
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	return w, nil
}

// OnEvent registers h for every subsequent event.
func (w *Watcher) OnEvent(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Run polls until ctx is done. Poll errors are logged and retried on the
// next tick.
func (w *Watcher) Run(ctx context.Context) error {
	if chainID, err := w.backend.ChainID(ctx); err == nil {
		w.source.ChainID = chainID.String()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watching escrow events", "contract", w.source.Contract, "interval", w.interval)

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("escrow event poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll scans blocks up to the current head once and dispatches the events
// found. It returns how many events were dispatched.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	head, err := w.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: reading head: %w", escrow.ErrLedgerUnavailable, err)
	}

	w.mu.Lock()
	if !w.started {
		w.next = head + 1
		w.started = true
	}
	from := w.next
	w.mu.Unlock()

	if head < from {
		return 0, nil
	}

	logs, err := w.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{w.backend.Contract()},
		Topics:    [][]common.Hash{w.topics},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: filtering logs %d-%d: %w", escrow.ErrLedgerUnavailable, from, head, err)
	}

	w.mu.Lock()
	handlers := append([]Handler(nil), w.handlers...)
	w.next = head + 1
	w.mu.Unlock()

	n := 0
	for _, l := range logs {
		ev, err := escrow.DecodeEvent(l)
		if err != nil {
			w.logger.Debug("skipping undecodable log", "tx", l.TxHash.Hex(), "error", err)
			continue
		}

		w.track(ev)
		for _, h := range handlers {
			h(ctx, ev)
		}
		w.publish(ev)
		n++
	}

	return n, nil
}

// track records the last status seen per order and warns when the ledger
// reports an order moving backwards.
func (w *Watcher) track(ev *escrow.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.last[ev.OrderID]; ok && escrow.Regresses(prev, ev.Status) {
		w.logger.Warn("order status regressed",
			"order_id", ev.OrderID,
			"previous", prev.String(),
			"observed", ev.Status.String(),
		)
	}
	w.last[ev.OrderID] = ev.Status
}

// LastStatus returns the last status observed for orderID.
func (w *Watcher) LastStatus(orderID string) (escrow.Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.last[orderID]
	return s, ok
}

var eventTypes = map[string]string{
	escrow.EventOrderProposed:  eventstream.EventTypeOrderProposed,
	escrow.EventOrderConfirmed: eventstream.EventTypeOrderConfirmed,
	escrow.EventOrderFinalized: eventstream.EventTypeOrderFinalized,
}

func (w *Watcher) publish(ev *escrow.Event) {
	if w.pool == nil {
		return
	}

	meta := eventstream.OrderMeta{
		OrderID:     ev.OrderID,
		Status:      ev.Status.String(),
		Contract:    ev.Name,
		Buyer:       ev.User.Hex(),
		TxHash:      ev.TxHash.Hex(),
		BlockNumber: ev.BlockNumber,
	}
	if !ev.AmountPaid.IsZero() {
		meta.AmountPaid = ev.AmountPaid.String()
	}
	if ev.PromptDigest != (common.Hash{}) {
		meta.PromptDigest = ev.PromptDigest.Hex()
	}

	w.pool.Publish(eventstream.NewOrderEvent(eventTypes[ev.Name], w.source, meta))
}
