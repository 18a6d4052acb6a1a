package agent_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/agent"
)

var _ = Describe("ParseAdminCommand", func() {
	It("ignores messages that are not commands", func() {
		_, ok, err := agent.ParseAdminCommand("hello there")
		Expect(ok).To(BeFalse())
		Expect(err).NotTo(HaveOccurred())
	})

	It("parses add_item with a slug and the original display", func() {
		cmd, ok, err := agent.ParseAdminCommand("add_item:Fish Tacos:12.50")
		Expect(ok).To(BeTrue())
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Kind).To(Equal(agent.AdminAddItem))
		Expect(cmd.Slug).To(Equal("fish_tacos"))
		Expect(cmd.Display).To(Equal("Fish Tacos"))
		Expect(cmd.Price.String()).To(Equal("12.5"))
	})

	It("splits the price on the last colon", func() {
		cmd, _, err := agent.ParseAdminCommand("update_price:Combo: Large:9")
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Slug).To(Equal("combo:_large"))
		Expect(cmd.Price.IntPart()).To(Equal(int64(9)))
	})

	It("parses item descriptions on the first colon", func() {
		cmd, _, err := agent.ParseAdminCommand("set_item_desc:Tacos:corn: soft")
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Kind).To(Equal(agent.AdminSetItemDescription))
		Expect(cmd.Slug).To(Equal("tacos"))
		Expect(cmd.Value).To(Equal("corn: soft"))
	})

	It("does not confuse set_desc with set_item_desc", func() {
		cmd, _, err := agent.ParseAdminCommand("set_desc:Best tacos in town")
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Kind).To(Equal(agent.AdminSetDescription))
		Expect(cmd.Value).To(Equal("Best tacos in town"))
	})

	DescribeTable("rejects malformed commands",
		func(s string) {
			_, ok, err := agent.ParseAdminCommand(s)
			Expect(ok).To(BeTrue())
			Expect(err).To(MatchError(agent.ErrMalformedCommand))
		},
		Entry("missing price", "add_item:Tacos"),
		Entry("zero price", "add_item:Tacos:0"),
		Entry("non-numeric price", "update_price:Tacos:cheap"),
		Entry("empty name", "remove_item:  "),
		Entry("bad wallet", "set_wallet:0x123"),
		Entry("zero wallet", "set_wallet:0x0000000000000000000000000000000000000000"),
		Entry("empty hours", "set_hours:"),
	)

	It("keeps the wallet as given", func() {
		cmd, _, err := agent.ParseAdminCommand("set_wallet: 0x2222222222222222222222222222222222222222 ")
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Value).To(Equal("0x2222222222222222222222222222222222222222"))
		Expect(cmd.Summary()).To(ContainSubstring("wallet set to"))
	})
})

var _ = Describe("Slugify", func() {
	It("lowercases and replaces spaces", func() {
		Expect(agent.Slugify("  Big Fish Tacos ")).To(Equal("big_fish_tacos"))
	})
})
