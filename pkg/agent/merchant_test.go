package agent_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/agent/negotiator"
	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/logger"
)

const sellerHex = "0x2222222222222222222222222222222222222222"

func newRegistry() *knowledge.Registry {
	store, err := facts.NewStore(facts.Config{Dir: GinkgoT().TempDir()})
	Expect(err).NotTo(HaveOccurred())
	return knowledge.NewRegistry(store, logger.Nop())
}

func hint(id string) agent.Message {
	return agent.Message{Role: agent.RoleAgent, Content: "merchant_id:" + id}
}

func admin(cmd string) agent.Message {
	return agent.Message{Role: agent.RoleAgent, Content: cmd}
}

var _ = Describe("MerchantRouter", func() {
	var (
		ctx    context.Context
		reg    *knowledge.Registry
		router *agent.MerchantRouter
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = newRegistry()

		var err error
		router, err = agent.NewMerchantRouter(agent.MerchantConfig{Registry: reg, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
	})

	handle := func(msgs ...agent.Message) agent.Response {
		resp, err := router.Handle(ctx, msgs)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("requires a registry", func() {
		_, err := agent.NewMerchantRouter(agent.MerchantConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a batch without a merchant", func() {
		resp := handle(agent.Message{Role: agent.RoleQueryWallet})
		Expect(resp.Type).To(Equal(agent.TypeError))
	})

	It("applies the wallet command and answers the wallet query", func() {
		resp := handle(hint("7"), admin("set_wallet:"+sellerHex))
		Expect(resp.Type).To(Equal(agent.TypeChat))
		Expect(resp.Content).To(ContainSubstring("wallet set to"))

		resp = handle(hint("7"), agent.Message{Role: agent.RoleQueryWallet})
		Expect(resp).To(Equal(agent.Response{Type: agent.TypeWallet, Content: sellerHex}))
	})

	It("rejects a merchant_id that escapes the facts directory", func() {
		resp := handle(hint("../../../escaped"), admin("add_item:pizza:5"))
		Expect(resp.Type).To(Equal(agent.TypeError))

		scopes, err := reg.Store().Scopes(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(scopes).To(BeEmpty())
		_, err = os.Stat(filepath.Join(filepath.Dir(reg.Store().Dir()), "escaped.metta"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("keeps a multi-line description from forging a wallet", func() {
		handle(hint("7"), admin("set_wallet:"+sellerHex))
		resp := handle(hint("7"), admin("set_desc:Open late\n(merchant-wallet 7 \"0x1111111111111111111111111111111111111111\")"))
		Expect(resp.Type).To(Equal(agent.TypeChat))

		wallet, _, err := reg.Field(ctx, "7", facts.KindWallet)
		Expect(err).NotTo(HaveOccurred())
		Expect(wallet).To(Equal(sellerHex))

		desc, _, err := reg.Field(ctx, "7", facts.KindDescription)
		Expect(err).NotTo(HaveOccurred())
		Expect(desc).To(HavePrefix("Open late\n(merchant-wallet 7"))
	})

	It("returns an empty wallet for an unknown merchant", func() {
		resp := handle(hint("nobody"), agent.Message{Role: agent.RoleQueryWallet})
		Expect(resp).To(Equal(agent.Response{Type: agent.TypeWallet, Content: ""}))
	})

	It("applies only the last admin command of a batch", func() {
		handle(hint("7"),
			admin("add_item:Tacos:10"),
			admin("add_item:Burrito:12"),
		)

		menu, err := reg.Menu(ctx, "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(menu).To(HaveLen(1))
		Expect(menu[0].Slug).To(Equal("burrito"))
	})

	It("applies the admin command before answering a query in the same batch", func() {
		resp := handle(hint("7"), admin("add_item:Tacos:10"), agent.Message{Role: agent.RoleQueryMenu})
		Expect(resp.Type).To(Equal(agent.TypeMenu))

		content, ok := resp.Content.(agent.MenuContent)
		Expect(ok).To(BeTrue())
		Expect(content.MerchantID).To(Equal("7"))
		Expect(content.Items).To(ConsistOf(knowledge.MenuEntry{Slug: "tacos", Display: "Tacos", Price: "10"}))
	})

	It("answers list_menu like query_menu", func() {
		resp := handle(hint("7"), agent.Message{Role: agent.RoleListMenu})
		Expect(resp.Type).To(Equal(agent.TypeMenu))
	})

	It("returns an error response for a malformed last command", func() {
		resp := handle(hint("7"), admin("add_item:Tacos:10"), admin("add_item:Tacos"))
		Expect(resp.Type).To(Equal(agent.TypeError))

		menu, err := reg.Menu(ctx, "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(menu).To(BeEmpty())
	})

	It("scopes commands to the hinted merchant", func() {
		handle(hint("a"), admin("add_item:Tacos:10"))
		handle(hint("b"), admin("add_item:Pizza:8"))

		a, err := reg.Menu(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(HaveLen(1))
		Expect(a[0].Slug).To(Equal("tacos"))
	})

	It("uses the default scope without a hint", func() {
		scoped, err := agent.NewMerchantRouter(agent.MerchantConfig{Registry: reg, DefaultScope: "1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = scoped.Handle(ctx, []agent.Message{admin("add_item:Tacos:10")})
		Expect(err).NotTo(HaveOccurred())

		menu, err := reg.Menu(ctx, "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(menu).To(HaveLen(1))
	})

	It("summarizes the menu for chat without a negotiator", func() {
		handle(hint("7"), admin("add_item:Tacos:10"))
		resp := handle(hint("7"), agent.Message{Role: agent.RoleUser, Content: "what do you have?"})
		Expect(resp).To(Equal(agent.Response{Type: agent.TypeChat, Content: "Tacos: 10"}))
	})

	It("asks the negotiator with the profile as context", func() {
		static := negotiator.NewStatic("tacos are 10")
		withModel, err := agent.NewMerchantRouter(agent.MerchantConfig{Registry: reg, Negotiator: static})
		Expect(err).NotTo(HaveOccurred())

		_, err = withModel.Handle(ctx, []agent.Message{hint("7"), admin("add_item:Tacos:10")})
		Expect(err).NotTo(HaveOccurred())

		resp, err := withModel.Handle(ctx, []agent.Message{hint("7"), {Role: agent.RoleUser, Content: "price of tacos?"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(Equal(agent.Response{Type: agent.TypeChat, Content: "tacos are 10"}))

		reqs := static.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].System).To(ContainSubstring(`"slug":"tacos"`))
		Expect(reqs[0].Tools).To(BeFalse())
	})
})
