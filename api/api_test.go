package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/agent/negotiator"
	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/contentstore/inmemory"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/escrow/memledger"
	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/logger"
	"github.com/papercomputeco/escrowd/pkg/search"
	"github.com/papercomputeco/escrowd/pkg/settlement"
)

const (
	buyerHex  = "0x1111111111111111111111111111111111111111"
	sellerHex = "0x2222222222222222222222222222222222222222"
)

type fixedWallet string

func (w fixedWallet) QueryWallet(context.Context, string) (string, error) {
	return string(w), nil
}

type fixture struct {
	server   *Server
	ledger   *memledger.Ledger
	client   *escrow.Client
	content  *contentstore.Store
	registry *knowledge.Registry
	model    *negotiator.Static
}

func newFixture() *fixture {
	f := &fixture{}

	var err error
	f.ledger, err = memledger.New(memledger.Config{})
	Expect(err).NotTo(HaveOccurred())
	f.client, err = escrow.NewClient(escrow.Config{Backend: f.ledger})
	Expect(err).NotTo(HaveOccurred())

	f.content = contentstore.NewStore(inmemory.NewDriver(), logger.Nop())

	store, err := facts.NewStore(facts.Config{Dir: GinkgoT().TempDir()})
	Expect(err).NotTo(HaveOccurred())
	f.registry = knowledge.NewRegistry(store, logger.Nop())
	index, err := search.NewIndex(search.Config{Registry: f.registry})
	Expect(err).NotTo(HaveOccurred())

	coordinator, err := settlement.NewCoordinator(settlement.Config{
		Content:  f.content,
		Ledger:   f.client,
		Merchant: fixedWallet(sellerHex),
	})
	Expect(err).NotTo(HaveOccurred())

	merchant, err := agent.NewMerchantRouter(agent.MerchantConfig{Registry: f.registry})
	Expect(err).NotTo(HaveOccurred())

	f.model = negotiator.NewStatic("what would you like?")
	customer, err := agent.NewCustomerRouter(agent.CustomerConfig{
		Orders:     coordinator,
		Negotiator: f.model,
	})
	Expect(err).NotTo(HaveOccurred())

	f.server = NewServer(Config{
		ListenAddr:  ":0",
		Customer:    customer,
		Merchant:    merchant,
		Registry:    f.registry,
		Index:       index,
		Content:     f.content,
		Ledger:      f.client,
		Coordinator: coordinator,
	}, logger.NopZap())
	return f
}

func do(s *Server, method, path string, body any) (int, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, int((5 * time.Second).Milliseconds()))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, data
}

func messages(msgs ...agent.Message) agent.MessagesRequest {
	return agent.MessagesRequest{Messages: msgs}
}

var _ = Describe("Server", func() {
	var (
		f   *fixture
		ctx context.Context
	)

	BeforeEach(func() {
		f = newFixture()
		ctx = context.Background()
	})

	It("answers ping", func() {
		code, body := do(f.server, http.MethodGet, "/ping", nil)
		Expect(code).To(Equal(fiber.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	It("reports the contract", func() {
		code, body := do(f.server, http.MethodGet, "/contract", nil)
		Expect(code).To(Equal(fiber.StatusOK))

		var info escrow.ContractInfo
		Expect(json.Unmarshal(body, &info)).To(Succeed())
		Expect(info.ChainID).To(Equal("31337"))
		Expect(info.HoldPeriodSeconds).To(Equal(int64(600)))
	})

	It("answers 503 for missing components", func() {
		bare := NewServer(Config{}, nil)
		code, _ := do(bare, http.MethodGet, "/orders/1", nil)
		Expect(code).To(Equal(fiber.StatusServiceUnavailable))
		code, _ = do(bare, http.MethodGet, "/merchants/search?q=tacos", nil)
		Expect(code).To(Equal(fiber.StatusServiceUnavailable))
	})

	Describe("merchant routes", func() {
		BeforeEach(func() {
			code, _ := do(f.server, http.MethodPost, "/merchant/messages", agent.MessagesRequest{
				MerchantID: "7",
				Messages:   []agent.Message{{Role: agent.RoleAgent, Content: "add_item:Fish Tacos:12"}},
			})
			Expect(code).To(Equal(fiber.StatusOK))
			code, _ = do(f.server, http.MethodPost, "/merchant/messages", agent.MessagesRequest{
				MerchantID: "7",
				Messages:   []agent.Message{{Role: agent.RoleAgent, Content: "set_location:Lisbon"}},
			})
			Expect(code).To(Equal(fiber.StatusOK))
		})

		It("rejects an empty batch", func() {
			code, body := do(f.server, http.MethodPost, "/merchant/messages", messages())
			Expect(code).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("messages are required"))
		})

		It("serves the menu", func() {
			code, body := do(f.server, http.MethodGet, "/merchants/7/menu", nil)
			Expect(code).To(Equal(fiber.StatusOK))

			var menu agent.MenuContent
			Expect(json.Unmarshal(body, &menu)).To(Succeed())
			Expect(menu.Items).To(ConsistOf(knowledge.MenuEntry{Slug: "fish_tacos", Display: "Fish Tacos", Price: "12"}))
		})

		It("serves the profile", func() {
			code, body := do(f.server, http.MethodGet, "/merchants/7", nil)
			Expect(code).To(Equal(fiber.StatusOK))

			var profile knowledge.Profile
			Expect(json.Unmarshal(body, &profile)).To(Succeed())
			Expect(profile.Location).To(Equal("Lisbon"))
		})

		It("finds the merchant by keyword", func() {
			code, body := do(f.server, http.MethodGet, "/merchants/search?q=tacos&top_k=3", nil)
			Expect(code).To(Equal(fiber.StatusOK))

			var out SearchResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].MerchantID).To(Equal("7"))
		})

		It("validates search parameters", func() {
			code, _ := do(f.server, http.MethodGet, "/merchants/search", nil)
			Expect(code).To(Equal(fiber.StatusBadRequest))
			code, body := do(f.server, http.MethodGet, "/merchants/search?q=tacos&top_k=0", nil)
			Expect(code).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("top_k must be a positive integer"))
		})
	})

	Describe("customer and order routes", func() {
		It("relays a chat reply", func() {
			code, body := do(f.server, http.MethodPost, "/customer/messages", messages(agent.Message{Role: agent.RoleUser, Content: "hi"}))
			Expect(code).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(ContainSubstring("what would you like?"))
		})

		It("creates an order and walks it through confirm and finalize", func() {
			model := negotiator.NewStatic("", agent.Decision{Action: &agent.Action{
				Tool: agent.ToolCreatePropose, Desc: "2 tacos", Price: "15",
			}})
			customer, err := agent.NewCustomerRouter(agent.CustomerConfig{Orders: f.server.config.Coordinator, Negotiator: model})
			Expect(err).NotTo(HaveOccurred())
			f.server.config.Customer = customer

			code, body := do(f.server, http.MethodPost, "/customer/messages", messages(
				agent.Message{Role: agent.RoleWallet, Content: buyerHex},
				agent.Message{Role: agent.RoleUser, Content: "2 tacos please"},
			))
			Expect(code).To(Equal(fiber.StatusOK))

			var resp struct {
				Type    string `json:"type"`
				Content struct {
					OrderID   string `json:"orderId"`
					ContentID string `json:"contentId"`
				} `json:"content"`
			}
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Type).To(Equal(agent.TypeOrder))
			Expect(resp.Content.OrderID).To(Equal("1"))

			code, body = do(f.server, http.MethodGet, "/content/"+resp.Content.ContentID, nil)
			Expect(code).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"desc":"2 tacos"`))

			code, body = do(f.server, http.MethodPost, "/orders/1/confirm", BuyerRequest{Buyer: buyerHex})
			Expect(code).To(Equal(fiber.StatusOK))
			var tx escrow.UnsignedTransaction
			Expect(json.Unmarshal(body, &tx)).To(Succeed())
			Expect(tx.Amount.Equal(decimal.NewFromInt(16))).To(BeTrue())

			// finalize before payment is a conflict
			code, _ = do(f.server, http.MethodPost, "/orders/1/finalize", nil)
			Expect(code).To(Equal(fiber.StatusConflict))

			_, err = f.ledger.Submit(ctx, tx.From, tx.Data)
			Expect(err).NotTo(HaveOccurred())

			code, body = do(f.server, http.MethodPost, "/orders/1/finalize", nil)
			Expect(code).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"order_id":"1"`))

			code, body = do(f.server, http.MethodGet, "/orders/1", nil)
			Expect(code).To(Equal(fiber.StatusOK))
			var order escrow.OrderDetails
			Expect(json.Unmarshal(body, &order)).To(Succeed())
			Expect(order.Status).To(Equal(escrow.StatusCompleted))

			code, body = do(f.server, http.MethodGet, "/users/"+buyerHex+"/orders?status=completed", nil)
			Expect(code).To(Equal(fiber.StatusOK))
			var mine UserOrdersResponse
			Expect(json.Unmarshal(body, &mine)).To(Succeed())
			Expect(mine.Count).To(Equal(1))
		})

		It("maps domain errors to status codes", func() {
			code, body := do(f.server, http.MethodGet, "/orders/42", nil)
			Expect(code).To(Equal(fiber.StatusNotFound))
			Expect(string(body)).To(ContainSubstring("order not found"))

			code, _ = do(f.server, http.MethodGet, "/orders/abc", nil)
			Expect(code).To(Equal(fiber.StatusBadRequest))

			code, _ = do(f.server, http.MethodGet, "/content/not-a-cid", nil)
			Expect(code).To(Equal(fiber.StatusBadRequest))

			code, _ = do(f.server, http.MethodGet, "/users/"+buyerHex+"/orders?status=lost", nil)
			Expect(code).To(Equal(fiber.StatusBadRequest))

			code, _ = do(f.server, http.MethodPost, "/orders/1/cancel", BuyerRequest{Buyer: "nope"})
			Expect(code).To(Equal(fiber.StatusBadRequest))
		})
	})
})
