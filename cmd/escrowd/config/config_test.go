package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/escrowd/cmd/escrowd/config"
	"github.com/papercomputeco/escrowd/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		subcommands := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd.Execute()
	}

	load := func() *config.Config {
		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			Expect(run("set", "ledger.provider", "ethereum")).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(load().Ledger.Provider).To(Equal("ethereum"))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "proxy.provider", "anthropic")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects invalid durations", func() {
			Expect(run("set", "agent.remote_timeout", "soon")).NotTo(Succeed())
		})

		It("rejects invalid chain ids", func() {
			Expect(run("set", "ledger.chain_id", "mainnet")).NotTo(Succeed())
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "ledger.provider")).NotTo(Succeed())
		})

		It("masks secrets in its confirmation", func() {
			Expect(run("set", "llm.api_key", "sk-test-123456")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("****3456"))
			Expect(out.String()).NotTo(ContainSubstring("sk-test"))
			Expect(load().LLM.APIKey).To(Equal("sk-test-123456"))
		})
	})

	Describe("get subcommand", func() {
		It("prints a previously set value", func() {
			Expect(run("set", "agent.default_merchant", "12")).To(Succeed())
			out.Reset()

			Expect(run("get", "agent.default_merchant")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("agent.default_merchant"))
			Expect(out.String()).To(ContainSubstring("12"))
		})

		It("marks unset keys", func() {
			Expect(run("get", "ledger.contract_address")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("reveals secrets on request", func() {
			Expect(run("set", "ledger.controller_key", "deadbeefcafe")).To(Succeed())
			out.Reset()

			Expect(run("get", "ledger.controller_key")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("deadbeefcafe"))

			out.Reset()
			Expect(run("get", "ledger.controller_key", "--reveal")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("deadbeefcafe"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key with defaults filled in", func() {
			Expect(run("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(ContainSubstring("asi1-mini"))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})
})
