package merchantcmder_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	merchantcmder "github.com/papercomputeco/escrowd/cmd/escrowd/merchant"
	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
	"github.com/papercomputeco/escrowd/pkg/search"
)

const walletHex = "0x3333333333333333333333333333333333333333"

var _ = Describe("merchant command", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		cmd := merchantcmder.NewMerchantCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.PersistentFlags().Bool("debug", false, "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append(args, "--config-dir", configDir))
		return cmd.Execute()
	}

	It("applies admin commands to the fact log under the config dir", func() {
		Expect(run("apply", "1", "add_item:Fish", "Tacos:12")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("added Fish Tacos at 12"))

		_, err := os.Stat(filepath.Join(configDir, "facts"))
		Expect(err).NotTo(HaveOccurred())

		out.Reset()
		Expect(run("menu", "1", "--json")).To(Succeed())
		var menu []knowledge.MenuEntry
		Expect(json.Unmarshal(out.Bytes(), &menu)).To(Succeed())
		Expect(menu).To(ConsistOf(knowledge.MenuEntry{Slug: "fish_tacos", Display: "Fish Tacos", Price: "12"}))
	})

	It("honors --facts-dir", func() {
		factsDir := GinkgoT().TempDir()
		Expect(run("apply", "2", "set_hours:9-5", "--facts-dir", factsDir)).To(Succeed())

		entries, err := os.ReadDir(factsDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).NotTo(BeEmpty())
	})

	It("rejects malformed and unknown commands", func() {
		Expect(run("apply", "1", "add_item:Tacos:free")).To(MatchError(agent.ErrMalformedCommand))
		Expect(run("apply", "1", "hello", "there")).To(MatchError(agent.ErrMalformedCommand))
	})

	It("hides removed items from the menu", func() {
		Expect(run("apply", "1", "add_item:Tacos:5")).To(Succeed())
		Expect(run("apply", "1", "remove_item:Tacos")).To(Succeed())

		out.Reset()
		Expect(run("menu", "1")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No menu items."))
	})

	It("shows a merchant profile", func() {
		Expect(run("apply", "5", "set_wallet:"+walletHex)).To(Succeed())
		Expect(run("apply", "5", "set_location:Mission", "St")).To(Succeed())
		Expect(run("apply", "5", "add_item:Horchata:3")).To(Succeed())

		out.Reset()
		Expect(run("profile", "5", "--json")).To(Succeed())
		var profile knowledge.Profile
		Expect(json.Unmarshal(out.Bytes(), &profile)).To(Succeed())
		Expect(profile.Wallet).To(Equal(walletHex))
		Expect(profile.Location).To(Equal("Mission St"))
		Expect(profile.Menu).To(HaveLen(1))

		out.Reset()
		Expect(run("profile", "5")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Horchata"))
	})

	It("searches and reindexes merchants", func() {
		Expect(run("apply", "1", "add_item:Fish Tacos:12")).To(Succeed())
		Expect(run("apply", "2", "add_item:Ramen:14")).To(Succeed())

		out.Reset()
		Expect(run("reindex")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Rebuilding merchant index"))

		out.Reset()
		Expect(run("search", "tacos", "--json")).To(Succeed())
		var results []search.Result
		Expect(json.Unmarshal(out.Bytes(), &results)).To(Succeed())
		Expect(results).To(HaveLen(1))
		Expect(results[0].MerchantID).To(Equal("1"))

		out.Reset()
		Expect(run("search", "pizza")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No merchants found."))
	})
})
