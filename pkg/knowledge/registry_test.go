package knowledge_test

import (
	"context"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/logger"
)

var _ = Describe("Registry", func() {
	var (
		ctx   context.Context
		store *facts.Store
		reg   *knowledge.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = facts.NewStore(facts.Config{Dir: GinkgoT().TempDir()})
		Expect(err).NotTo(HaveOccurred())
		reg = knowledge.NewRegistry(store, logger.Nop())
	})

	menu := func(scope string) []knowledge.MenuEntry {
		m, err := reg.Menu(ctx, scope)
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	Describe("reads on a cold scope", func() {
		It("returns an empty menu", func() {
			Expect(menu("nobody")).To(BeEmpty())
		})

		It("returns no field", func() {
			_, ok, err := reg.Field(ctx, "nobody", facts.KindWallet)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("latest write wins", func() {
		It("returns the last appended price", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "a", "a", "1")).To(Succeed())
			for _, v := range []string{"2", "3", "4"} {
				Expect(reg.UpdatePrice(ctx, "7", "a", v)).To(Succeed())
			}
			Expect(menu("7")).To(Equal([]knowledge.MenuEntry{{Slug: "a", Display: "a", Price: "4"}}))
		})

		It("returns the last wallet after compaction", func() {
			Expect(reg.SetField(ctx, "7", facts.KindWallet, "0x1")).To(Succeed())
			Expect(reg.SetField(ctx, "7", facts.KindWallet, "0x2")).To(Succeed())

			w, ok, err := reg.Field(ctx, "7", facts.KindWallet)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(w).To(Equal("0x2"))

			path, err := store.Path("7")
			Expect(err).NotTo(HaveOccurred())
			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(string(data), "merchant-wallet")).To(Equal(1))
		})
	})

	Describe("AddOrUpdateItem", func() {
		It("adds then updates the price of a merchant item", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "cheese_pizza", "cheese_pizza", "12")).To(Succeed())
			Expect(reg.AddOrUpdateItem(ctx, "7", "cheese_pizza", "cheese_pizza", "13")).To(Succeed())

			Expect(menu("7")).To(Equal([]knowledge.MenuEntry{
				{Slug: "cheese_pizza", Display: "cheese_pizza", Price: "13"},
			}))
		})

		It("appends only a price update for an existing item", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "cheese_pizza", "cheese pizza", "12")).To(Succeed())
			Expect(reg.AddOrUpdateItem(ctx, "7", "cheese_pizza", "cheese pizza", "13")).To(Succeed())

			var kinds []facts.Kind
			Expect(store.Replay(ctx, "7", func(f facts.Fact) { kinds = append(kinds, f.Kind) })).To(Succeed())
			Expect(kinds).To(Equal([]facts.Kind{
				facts.KindMenuItem, facts.KindItemDisplay, facts.KindPriceUpdate,
				facts.KindPriceUpdate,
			}))
		})

		It("re-displays an item whose name changed", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "cheese_pizza", "cheese pizza", "12")).To(Succeed())
			Expect(reg.AddOrUpdateItem(ctx, "7", "cheese_pizza", "Cheese Pizza", "12")).To(Succeed())

			Expect(menu("7")[0].Display).To(Equal("Cheese Pizza"))
		})

		It("keeps first-seen order", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "b", "b", "1")).To(Succeed())
			Expect(reg.AddOrUpdateItem(ctx, "7", "a", "a", "1")).To(Succeed())
			Expect(reg.AddOrUpdateItem(ctx, "7", "b", "b", "2")).To(Succeed())

			m := menu("7")
			Expect(m).To(HaveLen(2))
			Expect(m[0].Slug).To(Equal("b"))
			Expect(m[1].Slug).To(Equal("a"))
		})
	})

	Describe("tombstones", func() {
		It("removes an item from the menu", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "cheese_pizza", "cheese_pizza", "12")).To(Succeed())
			Expect(reg.RemoveItem(ctx, "7", "cheese_pizza")).To(Succeed())

			Expect(menu("7")).To(BeEmpty())
		})

		It("is idempotent", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "a", "a", "1")).To(Succeed())
			Expect(reg.RemoveItem(ctx, "7", "a")).To(Succeed())
			Expect(reg.RemoveItem(ctx, "7", "a")).To(Succeed())
			Expect(menu("7")).To(BeEmpty())
		})

		It("keeps a removed item hidden after price updates", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "a", "a", "1")).To(Succeed())
			Expect(reg.RemoveItem(ctx, "7", "a")).To(Succeed())
			Expect(reg.UpdatePrice(ctx, "7", "a", "5")).To(Succeed())
			Expect(menu("7")).To(BeEmpty())
		})

		It("re-admits an item with a fresh menu fact", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "a", "a", "1")).To(Succeed())
			Expect(reg.RemoveItem(ctx, "7", "a")).To(Succeed())
			Expect(reg.AddOrUpdateItem(ctx, "7", "a", "a", "2")).To(Succeed())

			Expect(menu("7")).To(Equal([]knowledge.MenuEntry{{Slug: "a", Display: "a", Price: "2"}}))
		})
	})

	Describe("Profile", func() {
		It("collects menu, fields, and categories", func() {
			Expect(reg.AddOrUpdateItem(ctx, "7", "a", "A", "1")).To(Succeed())
			Expect(reg.SetItemDescription(ctx, "7", "a", "crispy")).To(Succeed())
			Expect(reg.SetField(ctx, "7", facts.KindDescription, "pizza place")).To(Succeed())
			Expect(reg.SetField(ctx, "7", facts.KindHours, "9-5")).To(Succeed())
			Expect(reg.SetField(ctx, "7", facts.KindLocation, "Lisbon")).To(Succeed())
			Expect(reg.SetField(ctx, "7", facts.KindCategory, "pizza")).To(Succeed())
			Expect(reg.SetField(ctx, "7", facts.KindCategory, "pizza")).To(Succeed())

			p, err := reg.Profile(ctx, "7")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Menu).To(Equal([]knowledge.MenuEntry{{Slug: "a", Display: "A", Price: "1", Description: "crispy"}}))
			Expect(p.Description).To(Equal("pizza place"))
			Expect(p.Hours).To(Equal("9-5"))
			Expect(p.Location).To(Equal("Lisbon"))
			Expect(p.Categories).To(Equal([]string{"pizza"}))
		})

		It("rejects item kinds as fields", func() {
			Expect(reg.SetField(ctx, "7", facts.KindPriceUpdate, "1")).NotTo(Succeed())
		})
	})

	Describe("external writers", func() {
		It("sees facts appended outside the registry", func() {
			Expect(menu("7")).To(BeEmpty())

			Expect(store.Append(ctx, "7", facts.MenuItem("a", "a", "1"))).To(Succeed())
			Expect(menu("7")).To(HaveLen(1))
		})
	})
})
