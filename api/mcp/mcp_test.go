package mcp_test

import (
	"context"
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/api/mcp"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/escrow/memledger"
	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/logger"
	"github.com/papercomputeco/escrowd/pkg/search"
)

var _ = Describe("MCP Server", func() {
	var (
		ctx      context.Context
		registry *knowledge.Registry
		index    *search.Index
		ledger   *escrow.Client
		server   *mcp.Server
	)

	BeforeEach(func() {
		ctx = context.Background()

		store, err := facts.NewStore(facts.Config{Dir: GinkgoT().TempDir()})
		Expect(err).NotTo(HaveOccurred())
		registry = knowledge.NewRegistry(store, logger.Nop())
		Expect(registry.AddOrUpdateItem(ctx, "7", "fish_tacos", "Fish Tacos", "12")).To(Succeed())
		Expect(registry.SetField(ctx, "7", facts.KindLocation, "Lisbon")).To(Succeed())

		index, err = search.NewIndex(search.Config{Registry: registry})
		Expect(err).NotTo(HaveOccurred())

		backend, err := memledger.New(memledger.Config{})
		Expect(err).NotTo(HaveOccurred())
		ledger, err = escrow.NewClient(escrow.Config{Backend: backend})
		Expect(err).NotTo(HaveOccurred())

		server, err = mcp.NewServer(mcp.Config{
			Registry: registry,
			Index:    index,
			Ledger:   ledger,
			Logger:   logger.NopZap(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when the registry is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Index: index, Logger: logger.NopZap()})
			Expect(err).To(MatchError(ContainSubstring("knowledge registry is required")))
		})

		It("returns an error when the index is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Registry: registry, Logger: logger.NopZap()})
			Expect(err).To(MatchError(ContainSubstring("search index is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Registry: registry, Index: index})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("creates an empty server when noop", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("tools", func() {
		var session *sdk.ClientSession

		BeforeEach(func() {
			clientTransport, serverTransport := sdk.NewInMemoryTransports()
			_, err := server.MCPServer().Connect(ctx, serverTransport, nil)
			Expect(err).NotTo(HaveOccurred())

			client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "v0.0.1"}, nil)
			session, err = client.Connect(ctx, clientTransport, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(session.Close)
		})

		call := func(name string, args map[string]any) (*sdk.CallToolResult, string) {
			res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).NotTo(BeEmpty())
			text, ok := res.Content[0].(*sdk.TextContent)
			Expect(ok).To(BeTrue())
			return res, text.Text
		}

		It("lists the four tools", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, 0, len(res.Tools))
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("get_menu", "merchant_profile", "search_merchants", "get_order"))
		})

		It("returns the menu", func() {
			res, text := call("get_menu", map[string]any{"merchant_id": "7"})
			Expect(res.IsError).To(BeFalse())

			var out mcp.MenuOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Items).To(ConsistOf(knowledge.MenuEntry{Slug: "fish_tacos", Display: "Fish Tacos", Price: "12"}))
		})

		It("returns the profile", func() {
			_, text := call("merchant_profile", map[string]any{"merchant_id": "7"})

			var out mcp.ProfileOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Profile.Location).To(Equal("Lisbon"))
		})

		It("searches merchants", func() {
			_, text := call("search_merchants", map[string]any{"query": "fish tacos in lisbon"})

			var out mcp.SearchOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].MerchantID).To(Equal("7"))
		})

		It("reports a missing order as a tool error", func() {
			res, text := call("get_order", map[string]any{"order_id": "9"})
			Expect(res.IsError).To(BeTrue())
			Expect(text).To(ContainSubstring("order not found"))
		})
	})
})
