package watch_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/escrow/memledger"
	"github.com/papercomputeco/escrowd/pkg/escrow/watch"
	"github.com/papercomputeco/escrowd/pkg/eventstream"
	"github.com/papercomputeco/escrowd/pkg/worker"
)

const (
	buyerHex  = "0x1111111111111111111111111111111111111111"
	sellerHex = "0x2222222222222222222222222222222222222222"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.OrderEvent
}

func (r *recordingPublisher) PublishOrder(_ context.Context, ev *eventstream.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

var _ = Describe("Watcher", func() {
	var (
		ctx    context.Context
		ledger *memledger.Ledger
		client *escrow.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		ledger, err = memledger.New(memledger.Config{})
		Expect(err).NotTo(HaveOccurred())
		client, err = escrow.NewClient(escrow.Config{Backend: ledger})
		Expect(err).NotTo(HaveOccurred())
	})

	settle := func() string {
		id, _, err := client.ProposeOrder(ctx, [32]byte{7}, buyerHex)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.ProposeAnswer(ctx, id, "ok", decimal.NewFromInt(15), sellerHex)
		Expect(err).NotTo(HaveOccurred())
		tx, err := client.BuildConfirm(ctx, id, buyerHex)
		Expect(err).NotTo(HaveOccurred())
		_, err = ledger.Submit(ctx, tx.From, tx.Data)
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Finalize(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	It("requires a backend", func() {
		_, err := watch.New(watch.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("starts at the current head when no block is given", func() {
		settle()

		w, err := watch.New(watch.Config{Backend: ledger})
		Expect(err).NotTo(HaveOccurred())

		n, err := w.Poll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("dispatches every event once, in ledger order", func() {
		w, err := watch.New(watch.Config{Backend: ledger, FromBlock: 1})
		Expect(err).NotTo(HaveOccurred())

		var seen []string
		w.OnEvent(func(_ context.Context, ev *escrow.Event) {
			seen = append(seen, ev.Name)
		})

		id := settle()

		n, err := w.Poll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))
		Expect(seen).To(Equal([]string{
			escrow.EventOrderProposed,
			escrow.EventOrderConfirmed,
			escrow.EventOrderFinalized,
		}))

		status, ok := w.LastStatus(id)
		Expect(ok).To(BeTrue())
		Expect(status).To(Equal(escrow.StatusCompleted))

		n, err = w.Poll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("publishes events through the worker pool", func() {
		pub := &recordingPublisher{}
		pool, err := worker.NewPool(&worker.Config{Publisher: pub, NumWorkers: 1})
		Expect(err).NotTo(HaveOccurred())

		w, err := watch.New(watch.Config{Backend: ledger, Pool: pool, FromBlock: 1})
		Expect(err).NotTo(HaveOccurred())

		settle()
		_, err = w.Poll(ctx)
		Expect(err).NotTo(HaveOccurred())
		pool.Close()

		Expect(pub.types()).To(Equal([]string{
			eventstream.EventTypeOrderProposed,
			eventstream.EventTypeOrderConfirmed,
			eventstream.EventTypeOrderFinalized,
		}))
		Expect(pub.events[1].Order.AmountPaid).To(Equal("16"))
	})

	It("stops when the context is cancelled", func() {
		w, err := watch.New(watch.Config{Backend: ledger, Interval: 10 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- w.Run(runCtx) }()

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
