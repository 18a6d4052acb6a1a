package ordercmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/papercomputeco/escrowd/api"
	ordercmder "github.com/papercomputeco/escrowd/cmd/escrowd/order"
	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/contentstore/inmemory"
	"github.com/papercomputeco/escrowd/pkg/dotdir"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/escrow/memledger"
	"github.com/papercomputeco/escrowd/pkg/logger"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

const (
	buyerHex  = "0x1111111111111111111111111111111111111111"
	sellerHex = "0x2222222222222222222222222222222222222222"
)

// flakyWallet fails the first lookup so orders land in the pending ledger.
type flakyWallet struct {
	failures int
}

func (w *flakyWallet) QueryWallet(context.Context, string) (string, error) {
	if w.failures > 0 {
		w.failures--
		return "", settlement.ErrRemoteAgentUnavailable
	}
	return sellerHex, nil
}

var _ = Describe("order command", func() {
	var (
		ctx         context.Context
		configDir   string
		target      string
		ledger      *memledger.Ledger
		wallet      *flakyWallet
		coordinator *settlement.Coordinator
		out         *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		wallet = &flakyWallet{}
		ddm := dotdir.NewManager()

		var err error
		ledger, err = memledger.New(memledger.Config{})
		Expect(err).NotTo(HaveOccurred())
		client, err := escrow.NewClient(escrow.Config{Backend: ledger})
		Expect(err).NotTo(HaveOccurred())

		coordinator, err = settlement.NewCoordinator(settlement.Config{
			Content:  contentstore.NewStore(inmemory.NewDriver(), logger.Nop()),
			Ledger:   client,
			Merchant: wallet,
			OnPartial: func(p settlement.Pending) {
				Expect(ddm.RecordPending(dotdir.PendingSettlement{
					OrderID:    p.OrderID,
					Step:       p.Step,
					Buyer:      p.Buyer,
					MerchantID: p.MerchantID,
					Price:      p.Price.String(),
					Reason:     p.Err.Error(),
				}, configDir)).To(Succeed())
			},
		})
		Expect(err).NotTo(HaveOccurred())

		server := api.NewServer(api.Config{Ledger: client, Coordinator: coordinator}, logger.NopZap())
		lc := net.ListenConfig{}
		ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		go func() {
			_ = server.App().Listener(ln)
		}()
		DeferCleanup(func() { _ = server.Shutdown() })
		target = "http://" + ln.Addr().String()
	})

	run := func(args ...string) error {
		cmd := ordercmder.NewOrderCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append(args, "--api-target", target, "--config-dir", configDir))
		return cmd.Execute()
	}

	createOrder := func() string {
		result, err := coordinator.CreateAndPriceOrder(ctx, settlement.Request{
			Buyer:       buyerHex,
			MerchantID:  "4",
			Description: "3 tamales",
			Price:       decimal.NewFromInt(6),
		})
		Expect(err).NotTo(HaveOccurred())
		return result.OrderID
	}

	It("shows an order", func() {
		id := createOrder()

		Expect(run("get", id)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Proposed"))
		Expect(out.String()).To(ContainSubstring(sellerHex))
	})

	It("prints raw JSON on request", func() {
		id := createOrder()

		Expect(run("get", id, "--json")).To(Succeed())
		var order escrow.OrderDetails
		Expect(json.Unmarshal(out.Bytes(), &order)).To(Succeed())
		Expect(order.OrderID).To(Equal(id))
	})

	It("builds, pays, and finalizes an order", func() {
		id := createOrder()

		Expect(run("confirm", id, "--buyer", buyerHex, "--json")).To(Succeed())
		var tx escrow.UnsignedTransaction
		Expect(json.Unmarshal(out.Bytes(), &tx)).To(Succeed())
		Expect(tx.Amount.Equal(decimal.NewFromInt(7))).To(BeTrue())

		_, err := ledger.Submit(ctx, tx.From, tx.Data)
		Expect(err).NotTo(HaveOccurred())

		out.Reset()
		Expect(run("finalize", id)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Finalized order " + id))

		out.Reset()
		Expect(run("list", buyerHex, "--status", "completed")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Completed"))
	})

	It("requires a buyer to confirm", func() {
		Expect(run("confirm", "1")).To(MatchError(ContainSubstring("--buyer")))
	})

	It("rejects unknown statuses before calling the API", func() {
		Expect(run("list", buyerHex, "--status", "lost")).To(MatchError(ContainSubstring("unknown")))
	})

	It("lists and resumes partially settled orders", func() {
		wallet.failures = 1
		_, err := coordinator.CreateAndPriceOrder(ctx, settlement.Request{
			Buyer:       buyerHex,
			MerchantID:  "4",
			Description: "3 tamales",
			Price:       decimal.NewFromInt(6),
		})
		var partial *settlement.PartialSettlementError
		Expect(errors.As(err, &partial)).To(BeTrue())

		Expect(run("pending")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("order " + partial.OrderID))
		Expect(out.String()).To(ContainSubstring(settlement.StepResolveWallet))

		out.Reset()
		Expect(run("resume", partial.OrderID)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Resumed order " + partial.OrderID))

		order, err := escrowOrder(ledger, partial.OrderID)
		Expect(err).NotTo(HaveOccurred())
		Expect(order.Status).To(Equal(escrow.StatusProposed))
		Expect(order.Price.Equal(decimal.NewFromInt(6))).To(BeTrue())

		pending, err := dotdir.NewManager().LoadPending(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("reports an empty pending ledger", func() {
		Expect(run("pending")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No pending settlements."))
	})
})

func escrowOrder(ledger *memledger.Ledger, id string) (*escrow.OrderDetails, error) {
	client, err := escrow.NewClient(escrow.Config{Backend: ledger})
	if err != nil {
		return nil, err
	}
	return client.GetOrder(context.Background(), id)
}
